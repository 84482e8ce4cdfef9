package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/database"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TranscriptRepository 会话记录仓储接口
// 负责会话和消息的归档
type TranscriptRepository interface {
	// SaveSession 创建或更新会话记录
	SaveSession(session *models.ChatSession) error

	// GetSession 获取会话记录
	GetSession(id string) (*models.ChatSession, error)

	// AppendMessage 追加一条消息
	AppendMessage(message *models.ChatMessage) error

	// ListMessages 按时间顺序列出会话的消息
	ListMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error)

	// ClearMessages 删除会话的全部消息
	ClearMessages(sessionID string) error

	// DeleteSession 删除会话及其消息
	DeleteSession(id string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) TranscriptRepository
}

// transcriptRepo 会话记录仓储实现
type transcriptRepo struct {
	db *gorm.DB // 数据库连接
}

// NewTranscriptRepository 使用全局数据库连接创建仓储
func NewTranscriptRepository() TranscriptRepository {
	return &transcriptRepo{
		db: database.MustDB(),
	}
}

// NewTranscriptRepositoryWithDB 使用指定的数据库连接创建仓储
func NewTranscriptRepositoryWithDB(db *gorm.DB) TranscriptRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &transcriptRepo{
		db: db,
	}
}

// WithContext 创建带有上下文的仓储
func (r *transcriptRepo) WithContext(ctx context.Context) TranscriptRepository {
	return &transcriptRepo{
		db: r.db.WithContext(ctx),
	}
}

// SaveSession 创建或更新会话记录
func (r *transcriptRepo) SaveSession(session *models.ChatSession) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now()
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document_name", "state", "model", "last_error", "updated_at"}),
	}).Create(session).Error
}

// GetSession 获取会话记录
func (r *transcriptRepo) GetSession(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &session, nil
}

// AppendMessage 追加一条消息
func (r *transcriptRepo) AppendMessage(message *models.ChatMessage) error {
	if message.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		// 更新会话的最后更新时间
		return tx.Model(&models.ChatSession{}).
			Where("id = ?", message.SessionID).
			Update("updated_at", message.CreatedAt).Error
	})
}

// ListMessages 按时间顺序列出会话的消息
func (r *transcriptRepo) ListMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	var messages []*models.ChatMessage
	var total int64

	var exists int64
	if err := r.db.Model(&models.ChatSession{}).Where("id = ?", sessionID).Count(&exists).Error; err != nil {
		return nil, 0, err
	}
	if exists == 0 {
		return nil, 0, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}

	query := r.db.Model(&models.ChatMessage{}).Where("session_id = ?", sessionID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = -1
	}
	err := query.Order("created_at ASC").Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// ClearMessages 删除会话的全部消息
func (r *transcriptRepo) ClearMessages(sessionID string) error {
	return r.db.Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error
}

// DeleteSession 删除会话及其消息
func (r *transcriptRepo) DeleteSession(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.ChatSession{}).Error
	})
}
