package main

import (
	"fmt"
	"os"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	appconfig "github.com/fyerfyer/pdf-chat/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	cfg        *appconfig.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdfchat",
	Short: "Chat with a PDF document",
	Long: `pdfchat answers questions about an uploaded PDF.
The document is split into chunks, embedded into an in-memory index, and the
most similar chunks are passed to a chat model together with the question.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// .env 不存在时忽略
		_ = godotenv.Load()

		loaded, err := appconfig.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := middleware.ConfigureLogger(loaded.Log); err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
