package vectordb

import (
	"fmt"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库
// 使用暴力检索计算查询向量与全部段落的距离
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	distType  DistanceType
	docs      []Document
	idToIndex map[string]int
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension < 0 {
		return nil, fmt.Errorf("vector dimension must not be negative")
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	if _, err := ComputeDistance(nil, nil, distType); err != nil {
		return nil, err
	}

	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  distType,
		idToIndex: make(map[string]int),
	}, nil
}

// Add 添加单个段落
func (r *MemoryRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加段落，任一段落无效时不写入任何数据
func (r *MemoryRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dim := r.dimension
	if dim == 0 {
		dim = len(docs[0].Vector)
	}

	seen := make(map[string]bool, len(docs))
	prepared := make([]Document, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document at %d has empty ID", i)
		}
		if _, exists := r.idToIndex[doc.ID]; exists || seen[doc.ID] {
			return fmt.Errorf("duplicate document ID: %s", doc.ID)
		}
		seen[doc.ID] = true

		if err := ValidateVector(doc.Vector, dim); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now()
		}
		doc.Vector = append([]float32(nil), doc.Vector...)
		prepared[i] = doc
	}

	r.dimension = dim
	for _, doc := range prepared {
		r.idToIndex[doc.ID] = len(r.docs)
		r.docs = append(r.docs, doc)
	}
	return nil
}

// Get 获取单个段落
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.idToIndex[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return r.docs[idx], nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.docs) == 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(r.docs))
	for _, doc := range r.docs {
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    DistanceToScore(dist, r.distType),
			Distance: dist,
		})
	}

	SortSearchResults(results)
	return limitResults(results, filter), nil
}

// Count 获取段落总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs), nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

// Close 释放仓库资源
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = nil
	r.idToIndex = make(map[string]int)
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
