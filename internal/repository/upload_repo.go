package repository

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/pdf-chat/internal/database"
	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadRepository 上传记录仓储接口
type UploadRepository interface {
	// Create 创建上传记录
	Create(upload *models.Upload) error

	// GetByID 根据ID获取上传记录
	GetByID(id string) (*models.Upload, error)

	// ListBySession 列出会话的上传记录，最新的在前
	ListBySession(sessionID string) ([]*models.Upload, error)
}

// uploadRepo 上传记录仓储实现
type uploadRepo struct {
	db *gorm.DB
}

// NewUploadRepository 使用全局数据库连接创建仓储
func NewUploadRepository() UploadRepository {
	return &uploadRepo{db: database.MustDB()}
}

// NewUploadRepositoryWithDB 使用指定的数据库连接创建仓储
func NewUploadRepositoryWithDB(db *gorm.DB) UploadRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &uploadRepo{db: db}
}

// Create 创建上传记录
func (r *uploadRepo) Create(upload *models.Upload) error {
	if upload.ID == "" {
		upload.ID = uuid.New().String()
	}
	if upload.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	return r.db.Create(upload).Error
}

// GetByID 根据ID获取上传记录
func (r *uploadRepo) GetByID(id string) (*models.Upload, error) {
	var upload models.Upload
	if err := r.db.Where("id = ?", id).First(&upload).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrUploadNotFound, id)
		}
		return nil, err
	}
	return &upload, nil
}

// ListBySession 列出会话的上传记录
func (r *uploadRepo) ListBySession(sessionID string) ([]*models.Upload, error) {
	var uploads []*models.Upload
	err := r.db.Where("session_id = ?", sessionID).
		Order("uploaded_at DESC").
		Find(&uploads).Error
	return uploads, err
}
