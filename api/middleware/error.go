package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 定义应用中的错误类型常量
const (
	ErrorTypeValidation   = "VALIDATION_ERROR"   // 输入验证错误
	ErrorTypeUnauthorized = "UNAUTHORIZED_ERROR" // 缺少API密钥
	ErrorTypeNotFound     = "NOT_FOUND_ERROR"    // 资源不存在错误
	ErrorTypeConflict     = "CONFLICT_ERROR"     // 会话状态不允许该操作
	ErrorTypeDocument     = "DOCUMENT_ERROR"     // 文档无法处理
	ErrorTypeUpstream     = "UPSTREAM_ERROR"     // 嵌入或大模型服务调用失败
	ErrorTypeInternal     = "INTERNAL_ERROR"     // 内部服务器错误
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Kind    string // 流水线错误类型，可能为空
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口的方法
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// FromError 将服务层错误转换为应用错误
func FromError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var pe *services.PipelineError
	if errors.As(err, &pe) {
		return fromPipelineError(pe)
	}

	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, services.ErrEmptyQuestion),
		errors.Is(err, services.ErrEmptyDocument),
		errors.Is(err, services.ErrUnknownModel):
		return NewValidationError(err.Error())
	default:
		return NewInternalError("Internal server error", err.Error())
	}
}

// fromPipelineError 按流水线错误类型映射HTTP状态码
func fromPipelineError(pe *services.PipelineError) AppError {
	e := AppError{
		Kind:    string(pe.Kind),
		Message: pe.Cause(),
	}

	switch pe.Kind {
	case services.KindMissingCredential:
		e.Type, e.Code = ErrorTypeUnauthorized, http.StatusUnauthorized
		e.Message = services.MsgCredentialRequired
	case services.KindMalformedDocument:
		e.Type, e.Code = ErrorTypeDocument, http.StatusUnprocessableEntity
	case services.KindEmbeddingService:
		e.Type, e.Code = ErrorTypeUpstream, http.StatusBadGateway
	case services.KindAnswerGeneration:
		e.Type, e.Code = ErrorTypeUpstream, http.StatusBadGateway
		e.Message = services.MsgTurnFailedPrefix + pe.Cause()
	case services.KindNoIndexLoaded:
		e.Type, e.Code = ErrorTypeConflict, http.StatusConflict
		e.Message = "no document loaded, please upload a PDF first"
	default:
		e.Type, e.Code = ErrorTypeInternal, http.StatusInternalServerError
	}
	return e
}

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 捕获 panic
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"error":      err,
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: c.GetString(TraceIDKey),
				}).Error("Panic recovered in API request")

				errorResponse := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)

				// 在开发环境中可以返回详细错误
				if gin.Mode() == gin.DebugMode {
					errorResponse.Message = fmt.Sprintf("Panic: %v", err)
				}
				errorResponse.TraceID = c.GetString(TraceIDKey)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		// 取最后一个错误进行处理
		e := FromError(c.Errors.Last().Err)
		traceID := c.GetString(TraceIDKey)

		entry := log.WithFields(logrus.Fields{
			"error_type": e.Type,
			"kind":       e.Kind,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
		})
		if e.Code >= http.StatusInternalServerError {
			entry.WithField("details", e.Details).Error(e.Message)
		} else {
			entry.Warn(e.Message)
		}

		errResp := model.NewErrorResponse(e.Code, e.Message)
		errResp.TraceID = traceID
		if e.Kind != "" {
			errResp.Data = model.ErrorData{Kind: e.Kind}
		}

		// 在开发环境下显示内部错误的具体信息
		if e.Type == ErrorTypeInternal && e.Details != "" && gin.Mode() == gin.DebugMode {
			errResp.Message = e.Details
		}

		c.AbortWithStatusJSON(e.Code, errResp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
