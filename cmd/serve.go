package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyerfyer/pdf-chat/api"
	"github.com/fyerfyer/pdf-chat/api/handler"
	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/internal/database"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	servePort int
	serveMode string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (overrides config)")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "gin mode: debug, release or test (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := middleware.GetLogger()

	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveMode != "" {
		cfg.Server.Mode = serveMode
	}
	gin.SetMode(cfg.Server.Mode)

	logger.Info("Starting PDF chat server...")

	var controllerOpts []services.ControllerOption
	var handlerOpts []handler.SessionHandlerOption

	// 会话记录归档
	if cfg.Database.Enable {
		dbCfg := database.DefaultConfig()
		dbCfg.Type = cfg.Database.Type
		dbCfg.DSN = cfg.Database.DSN
		if err := database.Setup(dbCfg, logger); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer database.Close()

		controllerOpts = append(controllerOpts,
			services.WithRecorder(services.NewTranscriptArchive(repository.NewTranscriptRepository())))
	}

	// 上传文件归档
	if cfg.Storage.Enable {
		fileStorage, err := storage.New(storage.Config{
			Type:  cfg.Storage.Type,
			Local: storage.LocalConfig{Path: cfg.Storage.Path},
			Minio: storage.MinioConfig{
				Endpoint:  cfg.Storage.Endpoint,
				AccessKey: cfg.Storage.AccessKey,
				SecretKey: cfg.Storage.SecretKey,
				UseSSL:    cfg.Storage.UseSSL,
				Bucket:    cfg.Storage.Bucket,
			},
		})
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}

		var uploadRepo repository.UploadRepository
		if cfg.Database.Enable {
			uploadRepo = repository.NewUploadRepository()
		}
		handlerOpts = append(handlerOpts, handler.WithUploadArchive(fileStorage, uploadRepo))
	}
	handlerOpts = append(handlerOpts, handler.WithMaxUploadSize(int64(cfg.Server.MaxUploadMB)<<20))

	p, err := buildPipeline(cfg, logger, controllerOpts...)
	if err != nil {
		return err
	}
	defer p.Close()

	store := services.NewSessionStore(cfg.Session.TTL, cfg.Session.CleanupInterval, logger)
	router := api.SetupRouter(handler.NewSessionHandler(p.controller, store, handlerOpts...))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 等待终止信号
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}
