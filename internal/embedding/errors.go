package embedding

import (
	"errors"
	"fmt"
)

// EmbeddingError 嵌入错误类型
type EmbeddingError struct {
	Code    int    // 错误码
	Message string // 错误消息
}

// Error 实现error接口
func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding error (code=%d): %s", e.Code, e.Message)
}

// 错误码常量
const (
	ErrCodeInvalidAPIKey  = 1001 // 无效的API密钥
	ErrCodeInvalidRequest = 1002 // 无效的请求
	ErrCodeNetworkError   = 1003 // 网络连接错误
	ErrCodeRateLimited    = 1004 // 请求频率超限
	ErrCodeServerError    = 1005 // 服务器错误
	ErrCodeTimeout        = 1006 // 请求超时
	ErrCodeEmptyInput     = 1007 // 输入为空
	ErrCodeQuotaExceeded  = 1008 // 账户额度不足
	ErrCodeBadResponse    = 1009 // 响应内容与请求不匹配
)

// 错误消息常量
const (
	ErrMsgInvalidAPIKey  = "invalid API key"
	ErrMsgInvalidRequest = "invalid request parameters"
	ErrMsgRateLimited    = "too many requests, rate limit exceeded"
	ErrMsgServerError    = "server error occurred"
	ErrMsgTimeout        = "request timed out"
	ErrMsgEmptyInput     = "input text cannot be empty"
	ErrMsgNetworkError   = "network connection error"
	ErrMsgQuotaExceeded  = "quota exceeded"
	ErrMsgBadResponse    = "embedding count does not match input count"
)

// NewEmbeddingError 创建新的嵌入错误
func NewEmbeddingError(code int, message string) EmbeddingError {
	return EmbeddingError{
		Code:    code,
		Message: message,
	}
}

// CodeOf 返回错误链中的嵌入错误码，不是嵌入错误时返回0
func CodeOf(err error) int {
	var embErr EmbeddingError
	if errors.As(err, &embErr) {
		return embErr.Code
	}
	return 0
}

// IsRetryable 判断错误是否值得重试
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeRateLimited, ErrCodeServerError, ErrCodeNetworkError:
		return true
	default:
		return false
	}
}
