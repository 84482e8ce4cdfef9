package models

import (
	"time"

	"gorm.io/gorm"
)

// Upload 上传文件归档记录
type Upload struct {
	ID         string    `gorm:"primaryKey"`                 // 文件ID
	SessionID  string    `gorm:"not null;index"`             // 上传所在会话
	FileName   string    `gorm:"type:varchar(255);not null"` // 原始文件名
	StorageKey string    `gorm:"type:varchar(512);not null"` // 存储中的路径或对象名
	FileSize   int64     `gorm:"not null"`                   // 文件大小（字节）
	UploadedAt time.Time `gorm:"not null"`                   // 上传时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (u *Upload) BeforeCreate(tx *gorm.DB) (err error) {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (Upload) TableName() string {
	return "uploads"
}
