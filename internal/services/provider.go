package services

import (
	"time"

	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/sirupsen/logrus"
)

// ClientProvider 按会话凭证创建外部服务客户端
type ClientProvider interface {
	// Embedder 返回使用该凭证的嵌入客户端
	Embedder(credential string) (embedding.Client, error)
	// LLM 返回使用该凭证和模型的对话客户端
	LLM(credential, model string) (llm.Client, error)
}

// RegistryProvider 通过客户端注册表创建客户端
type RegistryProvider struct {
	EmbedProvider string             // 嵌入客户端类型，如 "openai"
	EmbedOptions  []embedding.Option // 嵌入客户端的公共配置
	LLMProvider   string             // 对话客户端类型
	LLMOptions    []llm.Option       // 对话客户端的公共配置
	Cache         cache.Cache        // 嵌入缓存，为nil时不缓存
	CacheTTL      time.Duration      // 嵌入缓存有效期
	Logger        *logrus.Logger
}

// Embedder 创建嵌入客户端，配置了缓存时包装为带缓存的客户端
// 缓存按凭证隔离，无效的凭证不会因命中其他凭证的缓存而跳过鉴权
func (p *RegistryProvider) Embedder(credential string) (embedding.Client, error) {
	opts := append(append([]embedding.Option(nil), p.EmbedOptions...), embedding.WithAPIKey(credential))
	client, err := embedding.NewClient(p.embedProvider(), opts...)
	if err != nil {
		return nil, err
	}
	if p.Cache != nil {
		return embedding.NewCachedClient(client, p.Cache, p.CacheTTL, p.Logger, embedding.WithCacheScope(credential)), nil
	}
	return client, nil
}

// LLM 创建对话客户端
func (p *RegistryProvider) LLM(credential, model string) (llm.Client, error) {
	opts := append(append([]llm.Option(nil), p.LLMOptions...),
		llm.WithAPIKey(credential),
		llm.WithModel(model),
	)
	return llm.NewClient(p.llmProvider(), opts...)
}

func (p *RegistryProvider) embedProvider() string {
	if p.EmbedProvider == "" {
		return "openai"
	}
	return p.EmbedProvider
}

func (p *RegistryProvider) llmProvider() string {
	if p.LLMProvider == "" {
		return "openai"
	}
	return p.LLMProvider
}
