package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// Index 单个文档的向量索引
// 由会话独占持有，文档变化时整体丢弃重建
type Index struct {
	name     string
	repo     vectordb.Repository
	embedder embedding.Client
	size     int
}

// DocumentName 返回索引对应的文档名称
func (i *Index) DocumentName() string {
	return i.name
}

// Len 返回索引中的段落数量
func (i *Index) Len() int {
	return i.size
}

// Close 释放索引
func (i *Index) Close() error {
	if i == nil || i.repo == nil {
		return nil
	}
	return i.repo.Close()
}

// IndexService 索引构建服务
type IndexService struct {
	vectorConfig vectordb.Config
	batchSize    int
	workers      int
	logger       *logrus.Logger
}

// IndexOption 索引服务配置选项
type IndexOption func(*IndexService)

// WithVectorConfig 设置向量仓库配置
func WithVectorConfig(cfg vectordb.Config) IndexOption {
	return func(s *IndexService) {
		s.vectorConfig = cfg
	}
}

// WithEmbedBatch 设置嵌入批大小和并行数
func WithEmbedBatch(batchSize, workers int) IndexOption {
	return func(s *IndexService) {
		s.batchSize = batchSize
		s.workers = workers
	}
}

// WithIndexLogger 设置日志记录器
func WithIndexLogger(logger *logrus.Logger) IndexOption {
	return func(s *IndexService) {
		s.logger = logger
	}
}

// NewIndexService 创建索引构建服务
func NewIndexService(opts ...IndexOption) *IndexService {
	s := &IndexService{
		vectorConfig: vectordb.DefaultConfig(),
		batchSize:    embedding.DefaultConfig().BatchSize,
		workers:      embedding.DefaultConfig().Workers,
		logger:       logrus.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build 为文档的全部段落生成向量并构建新的索引
// 任一步骤失败都不会返回部分索引
func (s *IndexService) Build(ctx context.Context, documentName string, chunks []document.Content, embedder embedding.Client) (*Index, error) {
	if len(chunks) == 0 {
		return nil, newPipelineError(KindMalformedDocument, document.ErrNoTextContent)
	}

	texts := document.Texts(chunks)
	processor := embedding.NewBatchProcessor(embedder, s.batchSize, s.workers)
	vectors, err := processor.Process(ctx, texts)
	if err != nil {
		return nil, newPipelineError(KindEmbeddingService, err)
	}
	if len(vectors) != len(chunks) {
		return nil, newPipelineError(KindEmbeddingService,
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	repo, err := vectordb.NewRepository(s.vectorConfig)
	if err != nil {
		return nil, newPipelineError(KindEmbeddingService, fmt.Errorf("failed to create vector index: %w", err))
	}

	docs := make([]vectordb.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vectordb.Document{
			ID:       fmt.Sprintf("%s#%d", documentName, chunk.Index),
			Source:   documentName,
			Position: chunk.Index,
			Text:     chunk.Text,
			Vector:   vectors[i],
		}
	}
	if err := repo.AddBatch(docs); err != nil {
		_ = repo.Close()
		return nil, newPipelineError(KindEmbeddingService, fmt.Errorf("failed to store vectors: %w", err))
	}

	s.logger.WithFields(logrus.Fields{
		"document":  documentName,
		"chunks":    len(chunks),
		"dimension": repo.GetDimension(),
		"embedder":  embedder.Name(),
	}).Info("Vector index built")

	return &Index{
		name:     documentName,
		repo:     repo,
		embedder: embedder,
		size:     len(chunks),
	}, nil
}
