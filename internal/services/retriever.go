package services

import (
	"context"
	"math"

	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// DefaultTopK 默认检索的段落数量
const DefaultTopK = 4

// RetrievedChunk 检索到的段落
type RetrievedChunk struct {
	Position int     `json:"position"` // 段落在文档中的位置
	Text     string  `json:"text"`     // 段落文本
	Score    float32 `json:"score"`    // 与问题的相似度
}

// Retriever 相似段落检索器
type Retriever struct {
	defaultK int
	logger   *logrus.Logger
}

// RetrieverOption 检索器配置选项
type RetrieverOption func(*Retriever)

// WithDefaultK 设置默认检索数量
func WithDefaultK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.defaultK = k
		}
	}
}

// WithRetrieverLogger 设置日志记录器
func WithRetrieverLogger(logger *logrus.Logger) RetrieverOption {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// NewRetriever 创建检索器
func NewRetriever(opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		defaultK: DefaultTopK,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query 返回与问题最相似的k个段落
// 按相似度降序排列，相似度相同时按段落位置升序
func (r *Retriever) Query(ctx context.Context, idx *Index, question string, k int) ([]RetrievedChunk, error) {
	if idx == nil || idx.repo == nil {
		return nil, newPipelineError(KindNoIndexLoaded, nil)
	}
	if k <= 0 {
		k = r.defaultK
	}

	vector, err := idx.embedder.Embed(ctx, question)
	if err != nil {
		return nil, newPipelineError(KindEmbeddingService, err)
	}

	results, err := idx.repo.Search(vector, vectordb.SearchFilter{
		MinScore:   -math.MaxFloat32,
		MaxResults: k,
	})
	if err != nil {
		return nil, newPipelineError(KindEmbeddingService, err)
	}

	chunks := make([]RetrievedChunk, len(results))
	for i, res := range results {
		chunks[i] = RetrievedChunk{
			Position: res.Document.Position,
			Text:     res.Document.Text,
			Score:    res.Score,
		}
	}

	r.logger.WithFields(logrus.Fields{
		"document": idx.name,
		"k":        k,
		"results":  len(chunks),
	}).Debug("Retrieved chunks")

	return chunks, nil
}
