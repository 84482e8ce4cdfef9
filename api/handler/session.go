package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/pdf-chat/api/middleware"
	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DefaultMaxUploadSize 默认上传文件大小上限
const DefaultMaxUploadSize = 32 << 20

// SessionHandler 处理会话相关的API请求
type SessionHandler struct {
	controller    *services.SessionController // 会话状态机
	store         *services.SessionStore      // 活跃会话
	fileStorage   storage.Storage             // 上传文件归档，可能为nil
	uploadRepo    repository.UploadRepository // 上传记录，可能为nil
	maxUploadSize int64                       // 上传文件大小上限
	logger        *logrus.Logger              // 日志记录器
}

// SessionHandlerOption 处理器配置选项
type SessionHandlerOption func(*SessionHandler)

// WithUploadArchive 设置上传文件归档
func WithUploadArchive(fileStorage storage.Storage, uploadRepo repository.UploadRepository) SessionHandlerOption {
	return func(h *SessionHandler) {
		h.fileStorage = fileStorage
		h.uploadRepo = uploadRepo
	}
}

// WithMaxUploadSize 设置上传文件大小上限(字节)
func WithMaxUploadSize(size int64) SessionHandlerOption {
	return func(h *SessionHandler) {
		if size > 0 {
			h.maxUploadSize = size
		}
	}
}

// NewSessionHandler 创建新的会话处理器
func NewSessionHandler(controller *services.SessionController, store *services.SessionStore, opts ...SessionHandlerOption) *SessionHandler {
	h := &SessionHandler{
		controller:    controller,
		store:         store,
		maxUploadSize: DefaultMaxUploadSize,
		logger:        middleware.GetLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ListModels 返回可选模型
// GET /api/models
func (h *SessionHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ModelsResponse{
		Models:  llm.AllowedModels(),
		Default: h.controller.DefaultModel(),
	}))
}

// CreateSession 创建会话
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, middleware.NewValidationError("invalid request body", err.Error()))
			return
		}
	}

	s := h.controller.NewSession()
	if req.Model != "" {
		if err := h.controller.SelectModel(s, req.Model); err != nil {
			middleware.HandleError(c, err)
			return
		}
	}
	h.controller.SetCredential(s, req.APIKey)
	h.store.Create(s)

	h.logger.WithFields(logrus.Fields{
		"session_id": s.ID,
		"model":      s.Model,
	}).Info("Session created")

	c.JSON(http.StatusCreated, model.NewSuccessResponse(s.View()))
}

// GetSession 获取会话状态
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	h.withSession(c, func(s *services.Session) error {
		c.JSON(http.StatusOK, model.NewSuccessResponse(s.View()))
		return nil
	})
}

// DeleteSession 删除会话
// DELETE /api/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid session id", err.Error()))
		return
	}

	if !h.store.Delete(uri.ID) {
		middleware.HandleError(c, services.ErrSessionNotFound)
		return
	}

	h.logger.WithField("session_id", uri.ID).Info("Session deleted")
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"id": uri.ID}))
}

// SetCredential 设置会话的API密钥
// PUT /api/sessions/:id/credential
func (h *SessionHandler) SetCredential(c *gin.Context) {
	var req model.CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request body", err.Error()))
		return
	}

	h.withSession(c, func(s *services.Session) error {
		h.controller.SetCredential(s, req.APIKey)
		c.JSON(http.StatusOK, model.NewSuccessResponse(s.View()))
		return nil
	})
}

// SelectModel 选择回答使用的模型
// PUT /api/sessions/:id/model
func (h *SessionHandler) SelectModel(c *gin.Context) {
	var req model.ModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid request body", err.Error()))
		return
	}

	h.withSession(c, func(s *services.Session) error {
		if err := h.controller.SelectModel(s, req.Model); err != nil {
			return err
		}
		c.JSON(http.StatusOK, model.NewSuccessResponse(s.View()))
		return nil
	})
}

// UploadDocument 上传PDF并同步构建索引
// POST /api/sessions/:id/document
func (h *SessionHandler) UploadDocument(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		middleware.HandleError(c, middleware.NewValidationError("file is required", err.Error()))
		return
	}

	filename := filepath.Base(fileHeader.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		middleware.HandleError(c, middleware.NewValidationError("only .pdf files are supported"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to open uploaded file", err.Error()))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to read uploaded file", err.Error()))
		return
	}

	h.withSession(c, func(s *services.Session) error {
		// 只归档会触发重建的上传
		var uploadID string
		if !s.CredentialRequired() && !h.controller.IsCurrentDocument(s, filename) {
			uploadID = h.archive(c.Request.Context(), s.ID, filename, data)
		}

		doc := services.Document{Name: filename, Data: data}
		if err := h.controller.LoadDocument(c.Request.Context(), s, doc); err != nil {
			return err
		}

		c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentResponse{
			UploadID: uploadID,
			Session:  s.View(),
		}))
		return nil
	})
}

// archive 归档上传的文件，失败只记录日志
func (h *SessionHandler) archive(ctx context.Context, sessionID, filename string, data []byte) string {
	if h.fileStorage == nil {
		return ""
	}

	info, err := h.fileStorage.Save(ctx, bytes.NewReader(data), filename)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to archive upload")
		return ""
	}

	if h.uploadRepo != nil {
		record := &models.Upload{
			ID:         info.ID,
			SessionID:  sessionID,
			FileName:   filename,
			StorageKey: info.Path,
			FileSize:   info.Size,
		}
		if err := h.uploadRepo.Create(record); err != nil {
			h.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to record upload")
		}
	}

	h.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"file_id":    info.ID,
		"filename":   filename,
		"size":       info.Size,
	}).Info("Upload archived")
	return info.ID
}

// ResetDocument 清除文档和历史
// DELETE /api/sessions/:id/document
func (h *SessionHandler) ResetDocument(c *gin.Context) {
	h.withSession(c, func(s *services.Session) error {
		h.controller.Reset(s)
		c.JSON(http.StatusOK, model.NewSuccessResponse(s.View()))
		return nil
	})
}

// AskQuestion 回答问题
// POST /api/sessions/:id/questions
func (h *SessionHandler) AskQuestion(c *gin.Context) {
	var req model.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("question is required", err.Error()))
		return
	}

	h.withSession(c, func(s *services.Session) error {
		answer, err := h.controller.Ask(c.Request.Context(), s, req.Question)
		if err != nil {
			return err
		}
		c.JSON(http.StatusOK, model.NewSuccessResponse(
			model.NewAnswerResponse(strings.TrimSpace(req.Question), answer)))
		return nil
	})
}

// ListMessages 返回会话历史
// GET /api/sessions/:id/messages
func (h *SessionHandler) ListMessages(c *gin.Context) {
	var req model.MessagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid pagination", err.Error()))
		return
	}

	h.withSession(c, func(s *services.Session) error {
		history := h.controller.History(s)
		total := len(history)

		start := req.Offset
		if start > total {
			start = total
		}
		end := total
		if req.Limit > 0 && start+req.Limit < end {
			end = start + req.Limit
		}

		c.JSON(http.StatusOK, model.NewSuccessResponse(model.MessagesResponse{
			SessionID: s.ID,
			Total:     total,
			Messages:  history[start:end],
		}))
		return nil
	})
}

// withSession 在会话上串行执行操作，错误交给错误中间件处理
func (h *SessionHandler) withSession(c *gin.Context, fn func(s *services.Session) error) {
	var uri model.SessionURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid session id", err.Error()))
		return
	}

	if err := h.store.Do(uri.ID, fn); err != nil {
		middleware.HandleError(c, err)
	}
}
