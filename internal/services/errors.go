package services

import (
	"errors"
	"fmt"
)

// ErrorKind 流水线错误类型
type ErrorKind string

const (
	// KindMissingCredential 未提供API密钥
	KindMissingCredential ErrorKind = "missing_credential"
	// KindMalformedDocument 文档无法解析或没有可提取的文本
	KindMalformedDocument ErrorKind = "malformed_document"
	// KindEmbeddingService 构建索引时嵌入服务调用失败
	KindEmbeddingService ErrorKind = "embedding_service_error"
	// KindAnswerGeneration 回答问题时大模型调用失败
	KindAnswerGeneration ErrorKind = "answer_generation_error"
	// KindNoIndexLoaded 尚未加载文档就进行查询
	KindNoIndexLoaded ErrorKind = "no_index_loaded"
)

// 用户可见的提示信息
const (
	MsgCredentialRequired = "please provide API key"
	MsgDocumentReady      = "PDF processed successfully. Please ask a question."
	MsgTurnFailedPrefix   = "An error occurred while processing the question: "
)

// 参数校验错误
var (
	ErrEmptyQuestion   = errors.New("question cannot be empty")
	ErrEmptyDocument   = errors.New("document name and content are required")
	ErrUnknownModel    = errors.New("model is not in the allowed list")
	ErrSessionNotFound = errors.New("session not found")
)

// PipelineError 流水线错误
// Kind 决定调用方如何处理，Err 保留底层原因
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

// Error 实现error接口
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap 返回底层错误
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Cause 返回底层错误的描述，没有底层错误时返回错误类型
func (e *PipelineError) Cause() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// newPipelineError 创建流水线错误
func newPipelineError(kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}

// KindOf 返回错误链中的流水线错误类型，不是流水线错误时返回空字符串
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind 判断错误是否为指定类型的流水线错误
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
