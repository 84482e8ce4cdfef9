package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/sirupsen/logrus"
)

// ModelConfig 单次回答使用的模型配置
type ModelConfig struct {
	Model      string // 模型名称，必须在允许列表中
	Credential string // API密钥
}

// Answer 回答结果
type Answer struct {
	Text    string           `json:"text"`
	Model   string           `json:"model"`
	Sources []RetrievedChunk `json:"sources"`
}

// AnswerEngine 回答生成器
// 将检索到的段落全部放入一次请求中
type AnswerEngine struct {
	provider ClientProvider
	ragOpts  []llm.RAGOption
	logger   *logrus.Logger
}

// AnswerOption 回答生成器配置选项
type AnswerOption func(*AnswerEngine)

// WithRAGOptions 设置RAG选项
func WithRAGOptions(opts ...llm.RAGOption) AnswerOption {
	return func(e *AnswerEngine) {
		e.ragOpts = append(e.ragOpts, opts...)
	}
}

// WithAnswerLogger 设置日志记录器
func WithAnswerLogger(logger *logrus.Logger) AnswerOption {
	return func(e *AnswerEngine) {
		e.logger = logger
	}
}

// NewAnswerEngine 创建回答生成器
func NewAnswerEngine(provider ClientProvider, opts ...AnswerOption) *AnswerEngine {
	e := &AnswerEngine{
		provider: provider,
		logger:   logrus.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Answer 基于检索到的段落回答问题
func (e *AnswerEngine) Answer(ctx context.Context, question string, chunks []RetrievedChunk, mc ModelConfig) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	model := mc.Model
	if model == "" {
		model = llm.DefaultModel
	}
	if !llm.IsAllowedModel(model) {
		return nil, newPipelineError(KindAnswerGeneration,
			llm.NewLLMError(llm.ErrCodeUnknownModel, fmt.Sprintf("%s: %s", llm.ErrMsgUnknownModel, model)))
	}

	client, err := e.provider.LLM(mc.Credential, model)
	if err != nil {
		return nil, newPipelineError(KindAnswerGeneration, err)
	}

	sources := make([]llm.SourceReference, len(chunks))
	for i, c := range chunks {
		sources[i] = llm.SourceReference{
			ID:       fmt.Sprintf("chunk-%d", c.Position),
			Position: c.Position,
			Content:  c.Text,
		}
	}

	// 温度固定为0，放在最后以覆盖调用方传入的选项
	opts := append(append([]llm.RAGOption(nil), e.ragOpts...), llm.WithRAGTemperature(0))
	resp, err := llm.NewRAG(client, opts...).Answer(ctx, question, sources)
	if err != nil {
		e.logger.WithError(err).WithField("model", model).Warn("Answer generation failed")
		return nil, newPipelineError(KindAnswerGeneration, err)
	}

	return &Answer{
		Text:    resp.Answer,
		Model:   model,
		Sources: append([]RetrievedChunk(nil), chunks...),
	}, nil
}
