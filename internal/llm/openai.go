package llm

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI对话模型客户端
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient 创建OpenAI对话客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
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

// Generate 根据单条提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	return c.complete(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts.MaxTokens, opts.Temperature, opts.TopP)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	return c.complete(ctx, messages, opts.MaxTokens, opts.Temperature, opts.TopP)
}

// complete 发送对话补全请求，按配置重试可恢复的错误
func (c *OpenAIClient) complete(ctx context.Context, messages []Message, maxTokens *int, temperature, topP *float32) (*Response, error) {
	req := c.buildRequest(messages, maxTokens, temperature, topP)

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := c.config.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, NewLLMError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(wait):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = classifyError(err)
			if !IsRetryable(lastErr) {
				return nil, lastErr
			}
			continue
		}

		return toResponse(resp, c.config.Model)
	}

	return nil, lastErr
}

// buildRequest 构建OpenAI请求
func (c *OpenAIClient) buildRequest(messages []Message, maxTokens *int, temperature, topP *float32) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:     c.config.Model,
		Messages:  make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens: c.config.MaxTokens,
		TopP:      c.config.TopP,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		})
	}

	temp := c.config.Temperature
	if temperature != nil {
		temp = *temperature
	}
	if maxTokens != nil {
		req.MaxTokens = *maxTokens
	}
	if topP != nil {
		req.TopP = *topP
	}

	// 温度字段为omitempty，0会被省略而退化为服务端默认值
	if temp == 0 {
		temp = math.SmallestNonzeroFloat32
	}
	req.Temperature = temp

	return req
}

// toResponse 将OpenAI响应转换为统一响应
func toResponse(resp openai.ChatCompletionResponse, model string) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeEmptyResponse, ErrMsgEmptyResponse)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, NewLLMError(ErrCodeContentFilter, ErrMsgContentFilter)
	}

	name := resp.Model
	if name == "" {
		name = model
	}

	return &Response{
		Text:         choice.Message.Content,
		TokenCount:   resp.Usage.TotalTokens,
		ModelName:    name,
		FinishReason: string(choice.FinishReason),
		FinishTime:   time.Now(),
	}, nil
}

// classifyError 将OpenAI返回的错误转换为LLM错误
func classifyError(err error) LLMError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewLLMError(ErrCodeTimeout, err.Error())
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota":
			return NewLLMError(ErrCodeQuotaExceeded, apiErr.Message)
		case apiErr.Code == "context_length_exceeded":
			return NewLLMError(ErrCodeContextTooLong, apiErr.Message)
		case apiErr.Code == "model_not_found":
			return NewLLMError(ErrCodeUnknownModel, apiErr.Message)
		}
		return NewLLMError(codeForStatus(apiErr.HTTPStatusCode), apiErr.Message)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewLLMError(codeForStatus(reqErr.HTTPStatusCode), err.Error())
	}

	return NewLLMError(ErrCodeNetworkError, err.Error())
}

// codeForStatus 根据HTTP状态码确定错误码
func codeForStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeInvalidAPIKey
	case status == http.StatusNotFound:
		return ErrCodeUnknownModel
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status == http.StatusServiceUnavailable:
		return ErrCodeModelOverload
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
