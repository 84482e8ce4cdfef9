package embedding

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAI单次请求允许的最大输入条数
const maxInputsPerRequest = 2048

// OpenAIClient OpenAI嵌入向量客户端
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config *Config        // 客户端配置
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > maxInputsPerRequest {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "too many inputs in one request")
	}
	for _, text := range texts {
		if text == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.Model),
	}
	// 只有text-embedding-3系列支持指定维度
	if c.config.Dimensions > 0 {
		req.Dimensions = c.config.Dimensions
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// 指数退避
			wait := c.config.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(wait):
			}
		}

		resp, err := c.client.CreateEmbeddings(ctx, req)
		if err != nil {
			lastErr = classifyError(err)
			if !IsRetryable(lastErr) {
				return nil, lastErr
			}
			continue
		}

		return collectVectors(resp, len(texts))
	}

	return nil, lastErr
}

// collectVectors 按响应中的索引还原输入顺序
func collectVectors(resp openai.EmbeddingResponse, n int) ([][]float32, error) {
	if len(resp.Data) != n {
		return nil, NewEmbeddingError(ErrCodeBadResponse, ErrMsgBadResponse)
	}

	vectors := make([][]float32, n)
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= n || vectors[item.Index] != nil {
			return nil, NewEmbeddingError(ErrCodeBadResponse, "invalid embedding index in response")
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

// classifyError 将OpenAI返回的错误转换为嵌入错误
func classifyError(err error) EmbeddingError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewEmbeddingError(ErrCodeTimeout, err.Error())
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota" {
			return NewEmbeddingError(ErrCodeQuotaExceeded, apiErr.Message)
		}
		return NewEmbeddingError(codeForStatus(apiErr.HTTPStatusCode), apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewEmbeddingError(codeForStatus(reqErr.HTTPStatusCode), err.Error())
	}

	return NewEmbeddingError(ErrCodeNetworkError, err.Error())
}

// codeForStatus 根据HTTP状态码确定错误码
func codeForStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 500:
		return ErrCodeServerError
	case status >= 400:
		return ErrCodeInvalidRequest
	default:
		return ErrCodeNetworkError
	}
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
