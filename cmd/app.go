package main

import (
	"fmt"

	appconfig "github.com/fyerfyer/pdf-chat/config"
	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// pipeline 组装好的问答流水线
type pipeline struct {
	controller *services.SessionController
	closers    []func() error
}

// Close 释放流水线持有的资源
func (p *pipeline) Close() {
	for _, closeFn := range p.closers {
		_ = closeFn()
	}
}

// buildPipeline 按配置组装会话状态机
func buildPipeline(cfg *appconfig.Config, logger *logrus.Logger, opts ...services.ControllerOption) (*pipeline, error) {
	if !vectordb.Supported(cfg.VectorDB.Type) {
		return nil, fmt.Errorf("vector index type %q is not available in this build (faiss requires -tags faiss)", cfg.VectorDB.Type)
	}

	p := &pipeline{}

	provider := &services.RegistryProvider{
		EmbedProvider: cfg.Embed.Provider,
		EmbedOptions: []embedding.Option{
			embedding.WithBaseURL(cfg.Embed.Endpoint),
			embedding.WithModel(cfg.Embed.Model),
			embedding.WithDimensions(cfg.Embed.Dimensions),
			embedding.WithTimeout(cfg.Embed.Timeout),
			embedding.WithMaxRetries(cfg.Embed.MaxRetries),
		},
		LLMProvider: cfg.LLM.Provider,
		LLMOptions: []llm.Option{
			llm.WithBaseURL(cfg.LLM.Endpoint),
			llm.WithTimeout(cfg.LLM.Timeout),
			llm.WithMaxRetries(cfg.LLM.MaxRetries),
		},
		Logger: logger,
	}

	if cfg.Cache.Enable {
		c, err := cache.NewCache(cache.Config{
			Type:            cfg.Cache.Type,
			KeyPrefix:       cfg.Cache.Prefix,
			RedisAddr:       cfg.Cache.Address,
			RedisPassword:   cfg.Cache.Password,
			RedisDB:         cfg.Cache.DB,
			DefaultTTL:      cfg.Cache.TTL,
			CleanupInterval: cache.DefaultConfig().CleanupInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		if closer, ok := c.(interface{ Close() error }); ok {
			p.closers = append(p.closers, closer.Close)
		}
		provider.Cache = c
		provider.CacheTTL = cfg.Cache.TTL
		logger.WithField("type", cfg.Cache.Type).Info("Embedding cache enabled")
	}

	splitter, err := document.NewCharacterSplitter(document.SplitterConfig{
		Separator:       cfg.Document.Separator,
		ChunkSize:       cfg.Document.ChunkSize,
		ChunkOverlap:    cfg.Document.ChunkOverlap,
		StripWhitespace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid splitter config: %w", err)
	}

	indexer := services.NewIndexService(
		services.WithVectorConfig(vectordb.Config{
			Type:         cfg.VectorDB.Type,
			Dimension:    cfg.Embed.Dimensions,
			DistanceType: vectordb.DistanceType(cfg.VectorDB.Distance),
		}),
		services.WithEmbedBatch(cfg.Embed.BatchSize, cfg.Embed.Workers),
		services.WithIndexLogger(logger),
	)

	answerer := services.NewAnswerEngine(provider,
		services.WithRAGOptions(
			llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
			llm.WithRAGTimeout(cfg.LLM.Timeout),
		),
		services.WithAnswerLogger(logger),
	)

	controllerOpts := append([]services.ControllerOption{
		services.WithDefaultModel(cfg.LLM.Model),
		services.WithTopK(cfg.Search.TopK),
		services.WithControllerLogger(logger),
	}, opts...)

	p.controller = services.NewSessionController(
		document.NewPDFExtractor(document.WithExtractorLogger(logger)),
		splitter,
		indexer,
		services.NewRetriever(services.WithDefaultK(cfg.Search.TopK), services.WithRetrieverLogger(logger)),
		answerer,
		provider,
		controllerOpts...,
	)
	return p, nil
}
