package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultSystemTemplate 默认系统提示词模板
// {{.Context}} 会被替换为检索到的段落
const DefaultSystemTemplate = "Use the following pieces of context to answer the user's question. \n" +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n" +
	"----------------\n" +
	"{{.Context}}"

// ContextSeparator 段落之间的分隔符
const ContextSeparator = "\n\n"

// formatContext 将全部段落依次拼接为一个上下文
func formatContext(sources []SourceReference) string {
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = src.Content
	}
	return strings.Join(parts, ContextSeparator)
}

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 系统提示词模板
	Template string
	// 最大Token数，0表示不限制
	MaxTokens int
	// 温度参数
	Temperature float32
	// 超时时间
	Timeout time.Duration
	// 是否带上引用来源
	IncludeSources bool
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:       DefaultSystemTemplate,
		Temperature:    0,
		Timeout:        60 * time.Second,
		IncludeSources: true,
	}
}

// RAGService 实现检索增强生成服务
// 所有段落一次性放入系统消息，问题作为用户消息
type RAGService struct {
	Client Client       // 大模型客户端
	config *RAGConfig   // 配置
	mu     sync.RWMutex // 配置互斥锁
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithTemplate 设置系统提示词模板
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.Template = template
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithSources 设置是否包含引用来源
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// Answer 根据检索到的段落和问题生成回答
func (r *RAGService) Answer(ctx context.Context, question string, sources []SourceReference) (*RAGResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := *r.config
	r.mu.RUnlock()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	opts := []ChatOption{WithChatTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, WithChatMaxTokens(cfg.MaxTokens))
	}

	response, err := r.Client.Chat(ctx, r.BuildMessages(question, sources), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	ragResponse := &RAGResponse{
		Answer: response.Text,
	}
	if cfg.IncludeSources && len(sources) > 0 {
		ragResponse.Sources = append([]SourceReference(nil), sources...)
	}

	return ragResponse, nil
}

// BuildMessages 构建发送给模型的消息
func (r *RAGService) BuildMessages(question string, sources []SourceReference) []Message {
	r.mu.RLock()
	template := r.config.Template
	r.mu.RUnlock()

	system := strings.ReplaceAll(template, "{{.Context}}", formatContext(sources))
	return []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: question},
	}
}

// SetTemplate 设置自定义系统提示词模板
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}
