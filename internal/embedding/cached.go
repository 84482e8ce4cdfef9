package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 同一作用域、同一模型下相同文本的向量只请求一次
type CachedClient struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	scope  string // 凭证摘要，不同凭证互不共享缓存
	logger *logrus.Logger
}

// CachedOption 缓存客户端配置选项
type CachedOption func(*CachedClient)

// WithCacheScope 按凭证隔离缓存，键中只保存凭证的摘要
func WithCacheScope(credential string) CachedOption {
	return func(c *CachedClient) {
		if credential == "" {
			c.scope = ""
			return
		}
		sum := sha256.Sum256([]byte(credential))
		c.scope = hex.EncodeToString(sum[:8])
	}
}

// NewCachedClient 创建带缓存的嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger, opts ...CachedOption) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cc := &CachedClient{
		client: client,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
	for _, opt := range opts {
		opt(cc)
	}
	return cc
}

// Name 返回模型名称
func (c *CachedClient) Name() string {
	return c.client.Name()
}

// Embed 生成单条文本的向量，优先读取缓存
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量，只对未命中缓存的文本调用下游客户端
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.lookup(c.key(text)); ok {
			vectors[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.client.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
	}

	for j, vec := range fresh {
		vectors[missIdx[j]] = vec
		c.store(c.key(missTexts[j]), vec)
	}

	c.logger.WithFields(logrus.Fields{
		"total": len(texts),
		"hits":  len(texts) - len(missTexts),
	}).Debug("Embedding cache lookup finished")

	return vectors, nil
}

// key 生成缓存键
func (c *CachedClient) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	if c.scope == "" {
		return cache.GenerateCacheKey("embedding", c.client.Name(), hex.EncodeToString(sum[:]))
	}
	return cache.GenerateCacheKey("embedding", c.scope, c.client.Name(), hex.EncodeToString(sum[:]))
}

// lookup 读取缓存，读取或解码失败视为未命中
func (c *CachedClient) lookup(key string) ([]float32, bool) {
	raw, found, err := c.cache.Get(key)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read embedding cache")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		c.logger.WithError(err).Warn("Discarding corrupt embedding cache entry")
		return nil, false
	}
	return vec, true
}

// store 写入缓存，失败只记录日志
func (c *CachedClient) store(key string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Set(key, string(data), c.ttl); err != nil {
		c.logger.WithError(err).Warn("Failed to write embedding cache")
	}
}
