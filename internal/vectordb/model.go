package vectordb

import (
	"errors"
	"fmt"
	"time"
)

// 常用错误定义
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrUnsupportedType  = errors.New("unsupported vector repository type")
)

// Document 文档段落模型
// 包含段落文本、向量表示及其在原文档中的位置
type Document struct {
	ID        string                 // 唯一标识符
	Source    string                 // 所属文档名称
	Position  int                    // 在原文档中的段落位置，从0开始
	Text      string                 // 原始文本内容
	Vector    []float32              // 向量表示
	CreatedAt time.Time              // 创建时间
	Metadata  map[string]interface{} // 附加元数据
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Document Document // 文档对象
	Score    float32  // 相似度得分，越大越相似
	Distance float32  // 计算的距离
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	MinScore   float32 // 最小相似度分数
	MaxResults int     // 最大返回结果数
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore:   -1,
		MaxResults: 4,
	}
}

// Repository 向量仓库接口
// 每个仓库只保存一份文档的全部段落
type Repository interface {
	// Add 添加单个段落
	Add(doc Document) error

	// AddBatch 批量添加段落
	AddBatch(docs []Document) error

	// Get 获取单个段落
	Get(id string) (Document, error)

	// Search 相似度搜索，结果按得分降序、位置升序排列
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)

	// Count 获取段落总数
	Count() (int, error)

	// GetDimension 返回向量维数，尚未确定时返回0
	GetDimension() int

	// Close 释放仓库资源
	Close() error
}

// Config 向量仓库配置
type Config struct {
	Type         string       // 仓库类型，如 "memory", "faiss"
	Dimension    int          // 向量维度，为0时由首个写入的向量决定
	DistanceType DistanceType // 距离计算类型
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Type:         "memory",
		DistanceType: Cosine,
	}
}

// Factory 向量仓库工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量仓库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量仓库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// Supported 判断该类型的仓库是否已注册，faiss需要以faiss构建标签编译
func Supported(repoType string) bool {
	if repoType == "" {
		return true
	}
	_, ok := RepositoryRegistry[repoType]
	return ok
}

// NewRepository 根据配置创建向量仓库实例，类型为空时使用内存实现
func NewRepository(config Config) (Repository, error) {
	if config.Type == "" {
		return NewMemoryRepository(config)
	}
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, config.Type)
	}
	return factory(config)
}
