//go:build faiss

package vectordb

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss平面索引的向量仓库
// 索引中的第i个向量对应docs中的第i个段落
type FaissRepository struct {
	mu        sync.RWMutex
	index     faiss.Index
	docs      []Document
	idToIndex map[string]int
	dimension int
	distType  DistanceType
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension < 0 {
		return nil, fmt.Errorf("vector dimension must not be negative")
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	repo := &FaissRepository{
		idToIndex: make(map[string]int),
		dimension: config.Dimension,
		distType:  distType,
	}

	if config.Dimension > 0 {
		index, err := createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create Faiss index: %w", err)
		}
		repo.index = index
	}
	return repo, nil
}

// createFaissIndex 创建Faiss索引
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	switch distType {
	case Cosine, DotProduct:
		return faiss.NewIndexFlat(dimension, faiss.MetricInnerProduct)
	case Euclidean:
		return faiss.NewIndexFlat(dimension, faiss.MetricL2)
	default:
		return nil, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// Add 添加单个段落
func (r *FaissRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加段落
func (r *FaissRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dim := r.dimension
	if dim == 0 {
		dim = len(docs[0].Vector)
	}

	flat := make([]float32, 0, len(docs)*dim)
	prepared := make([]Document, len(docs))
	for i, doc := range docs {
		if _, exists := r.idToIndex[doc.ID]; exists || doc.ID == "" {
			return fmt.Errorf("invalid or duplicate document ID: %q", doc.ID)
		}
		if err := ValidateVector(doc.Vector, dim); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		vec := doc.Vector
		if r.distType == Cosine {
			vec = normalizeVector(vec)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		doc.Vector = append([]float32(nil), doc.Vector...)
		prepared[i] = doc
		flat = append(flat, vec...)
	}

	if r.index == nil {
		index, err := createFaissIndex(dim, r.distType)
		if err != nil {
			return fmt.Errorf("failed to create Faiss index: %w", err)
		}
		r.index = index
		r.dimension = dim
	}

	if err := r.index.Add(flat); err != nil {
		return fmt.Errorf("failed to add vectors to index: %w", err)
	}

	for _, doc := range prepared {
		r.idToIndex[doc.ID] = len(r.docs)
		r.docs = append(r.docs, doc)
	}
	return nil
}

// Get 获取单个段落
func (r *FaissRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.idToIndex[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return r.docs[idx], nil
}

// Search 相似度搜索
// 平面索引的结果在得分相同时顺序不稳定，因此检索全部向量后重新排序
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.docs) == 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	distances, labels, err := r.index.Search(vector, int64(len(r.docs)))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	results := make([]SearchResult, 0, len(labels))
	for i, label := range labels {
		if label < 0 || int(label) >= len(r.docs) {
			continue
		}
		dist := distances[i]
		score := dist
		if r.distType == Euclidean {
			// Faiss返回的是平方距离
			score = DistanceToScore(float32(math.Sqrt(float64(dist))), Euclidean)
		}
		results = append(results, SearchResult{
			Document: r.docs[label],
			Score:    score,
			Distance: dist,
		})
	}

	SortSearchResults(results)
	return limitResults(results, filter), nil
}

// Count 获取段落总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// Close 释放Faiss索引占用的内存
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		r.index.Delete()
		r.index = nil
	}
	r.docs = nil
	r.idToIndex = make(map[string]int)
	return nil
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
