package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/sirupsen/logrus"
)

// Document 上传的文档，名称即文档身份
type Document struct {
	Name string
	Data []byte
}

// TranscriptRecorder 会话记录归档
// 归档失败只记录日志，不影响会话
type TranscriptRecorder interface {
	RecordSession(ctx context.Context, s *Session) error
	RecordMessage(ctx context.Context, sessionID string, m Message) error
	ClearMessages(ctx context.Context, sessionID string) error
}

// SessionController 会话状态机
// 负责文档加载、索引重建和问答轮次
type SessionController struct {
	extractor    document.Extractor
	splitter     document.Splitter
	indexer      *IndexService
	retriever    *Retriever
	answerer     *AnswerEngine
	provider     ClientProvider
	recorder     TranscriptRecorder
	defaultModel string
	topK         int
	logger       *logrus.Logger
}

// ControllerOption 状态机配置选项
type ControllerOption func(*SessionController)

// WithRecorder 设置会话记录归档
func WithRecorder(recorder TranscriptRecorder) ControllerOption {
	return func(c *SessionController) {
		c.recorder = recorder
	}
}

// WithDefaultModel 设置新会话的默认模型
func WithDefaultModel(model string) ControllerOption {
	return func(c *SessionController) {
		if llm.IsAllowedModel(model) {
			c.defaultModel = model
		}
	}
}

// WithTopK 设置每次检索的段落数量
func WithTopK(k int) ControllerOption {
	return func(c *SessionController) {
		c.topK = k
	}
}

// WithControllerLogger 设置日志记录器
func WithControllerLogger(logger *logrus.Logger) ControllerOption {
	return func(c *SessionController) {
		c.logger = logger
	}
}

// NewSessionController 创建会话状态机
func NewSessionController(
	extractor document.Extractor,
	splitter document.Splitter,
	indexer *IndexService,
	retriever *Retriever,
	answerer *AnswerEngine,
	provider ClientProvider,
	opts ...ControllerOption,
) *SessionController {
	c := &SessionController{
		extractor:    extractor,
		splitter:     splitter,
		indexer:      indexer,
		retriever:    retriever,
		answerer:     answerer,
		provider:     provider,
		defaultModel: llm.DefaultModel,
		logger:       logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSession 创建空会话
func (c *SessionController) NewSession() *Session {
	s := newSession(c.defaultModel)
	c.record(func(ctx context.Context) error { return c.recorder.RecordSession(ctx, s) })
	return s
}

// DefaultModel 返回新会话使用的模型
func (c *SessionController) DefaultModel() string {
	return c.defaultModel
}

// SetCredential 设置会话的API密钥，空字符串表示清除
func (c *SessionController) SetCredential(s *Session, key string) {
	s.credential = strings.TrimSpace(key)
	s.UpdatedAt = time.Now()
}

// SelectModel 选择回答使用的模型，只影响之后的回答
func (c *SessionController) SelectModel(s *Session, model string) error {
	if model == "" {
		model = c.defaultModel
	}
	if !llm.IsAllowedModel(model) {
		return fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	s.Model = model
	s.UpdatedAt = time.Now()
	c.record(func(ctx context.Context) error { return c.recorder.RecordSession(ctx, s) })
	return nil
}

// LoadDocument 加载文档并构建索引
// 同名文档在就绪或失败状态下重复上传不会触发重建
func (c *SessionController) LoadDocument(ctx context.Context, s *Session, doc Document) error {
	if s.CredentialRequired() {
		return newPipelineError(KindMissingCredential, nil)
	}
	if doc.Name == "" || len(doc.Data) == 0 {
		return ErrEmptyDocument
	}
	if c.IsCurrentDocument(s, doc.Name) {
		c.logger.WithFields(logrus.Fields{
			"session_id": s.ID,
			"document":   doc.Name,
			"state":      s.State,
		}).Debug("Same document observed, skipping rebuild")
		return nil
	}

	// 旧索引和消息整体丢弃
	s.release()
	s.Messages = nil
	s.LastError = ""
	s.DocumentName = doc.Name
	c.transition(s, StateBuilding)
	c.record(func(ctx context.Context) error { return c.recorder.ClearMessages(ctx, s.ID) })

	idx, err := c.build(ctx, s, doc)
	if err != nil {
		s.LastError = err.Error()
		c.transition(s, StateError)
		c.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": s.ID,
			"document":   doc.Name,
			"kind":       KindOf(err),
		}).Warn("Document build failed")
		c.record(func(ctx context.Context) error { return c.recorder.RecordSession(ctx, s) })
		return err
	}

	s.index = idx
	c.transition(s, StateReady)
	c.appendMessage(s, Message{Role: RoleAssistant, Content: MsgDocumentReady})
	return nil
}

// IsCurrentDocument 判断该名称的文档是否已在会话中就绪或失败，此时重复上传不会重建
func (c *SessionController) IsCurrentDocument(s *Session, name string) bool {
	return name != "" && name == s.DocumentName && (s.State == StateReady || s.State == StateError)
}

// build 提取、切分并建立索引
func (c *SessionController) build(ctx context.Context, s *Session, doc Document) (*Index, error) {
	text, err := c.extractor.Extract(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, newPipelineError(KindMalformedDocument, err)
	}

	chunks, err := c.splitter.Split(text)
	if err != nil {
		return nil, newPipelineError(KindMalformedDocument, err)
	}

	embedder, err := c.provider.Embedder(s.credential)
	if err != nil {
		return nil, newPipelineError(KindEmbeddingService, err)
	}

	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"document":   doc.Name,
		"bytes":      len(doc.Data),
		"characters": len([]rune(text)),
		"chunks":     len(chunks),
	}).Info("Document split into chunks")

	return c.indexer.Build(ctx, doc.Name, chunks, embedder)
}

// Ask 回答一个问题
// 回答失败会作为错误消息记入历史，会话保持就绪状态
func (c *SessionController) Ask(ctx context.Context, s *Session, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.CredentialRequired() {
		// 就绪后清除凭证时，本轮仍记入历史
		if s.State == StateReady {
			c.appendMessage(s, Message{Role: RoleUser, Content: question})
			c.appendMessage(s, Message{Role: RoleAssistant, Content: MsgCredentialRequired, IsError: true})
		}
		return nil, newPipelineError(KindMissingCredential, nil)
	}
	if s.State != StateReady || s.index == nil {
		return nil, newPipelineError(KindNoIndexLoaded, nil)
	}

	c.appendMessage(s, Message{Role: RoleUser, Content: question})

	answer, err := c.answer(ctx, s, question)
	if err != nil {
		// 检索阶段的嵌入错误同样只影响本轮
		cause := err
		var inner *PipelineError
		if errors.As(err, &inner) && inner.Err != nil {
			cause = inner.Err
		}
		pe := newPipelineError(KindAnswerGeneration, cause)
		c.logger.WithError(cause).WithField("session_id", s.ID).Warn("Question turn failed")
		c.appendMessage(s, Message{
			Role:    RoleAssistant,
			Content: MsgTurnFailedPrefix + pe.Cause(),
			IsError: true,
		})
		return nil, pe
	}

	c.appendMessage(s, Message{
		Role:    RoleAssistant,
		Content: answer.Text,
		Sources: answer.Sources,
	})
	return answer, nil
}

// answer 检索相关段落并生成回答
func (c *SessionController) answer(ctx context.Context, s *Session, question string) (*Answer, error) {
	chunks, err := c.retriever.Query(ctx, s.index, question, c.topK)
	if err != nil {
		return nil, err
	}
	return c.answerer.Answer(ctx, question, chunks, ModelConfig{
		Model:      s.Model,
		Credential: s.credential,
	})
}

// Reset 清空文档、索引和历史，回到空状态
func (c *SessionController) Reset(s *Session) {
	s.release()
	s.DocumentName = ""
	s.Messages = nil
	s.LastError = ""
	c.transition(s, StateEmpty)
	c.record(func(ctx context.Context) error { return c.recorder.ClearMessages(ctx, s.ID) })
	c.record(func(ctx context.Context) error { return c.recorder.RecordSession(ctx, s) })
}

// History 返回会话历史的副本
func (c *SessionController) History(s *Session) []Message {
	return append([]Message{}, s.Messages...)
}

// transition 切换会话状态
func (c *SessionController) transition(s *Session, to State) {
	from := s.State
	s.State = to
	s.UpdatedAt = time.Now()
	if from == to {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"from":       from,
		"to":         to,
		"document":   s.DocumentName,
	}).Info("Session state changed")
}

// appendMessage 追加消息并归档
func (c *SessionController) appendMessage(s *Session, m Message) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = m.CreatedAt
	c.record(func(ctx context.Context) error {
		if err := c.recorder.RecordSession(ctx, s); err != nil {
			return err
		}
		return c.recorder.RecordMessage(ctx, s.ID, m)
	})
}

// record 调用归档，失败只记录日志
func (c *SessionController) record(fn func(ctx context.Context) error) {
	if c.recorder == nil {
		return
	}
	if err := fn(context.Background()); err != nil {
		c.logger.WithError(err).Warn("Failed to archive transcript")
	}
}
