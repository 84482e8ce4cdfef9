package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// ChatSession 聊天会话模型
// 归档会话的文档、状态和模型，不保存API密钥
type ChatSession struct {
	ID           string    `gorm:"primaryKey"`                // 会话ID，主键
	DocumentName string    `gorm:"type:varchar(255);index"`   // 当前文档名称
	State        string    `gorm:"type:varchar(20);not null"` // 会话状态
	Model        string    `gorm:"type:varchar(64)"`          // 选择的模型
	LastError    string    `gorm:"type:text"`                 // 最近一次构建失败的原因
	CreatedAt    time.Time `gorm:"not null"`                  // 创建时间
	UpdatedAt    time.Time `gorm:"not null"`                  // 更新时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (cs *ChatSession) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	if cs.UpdatedAt.IsZero() {
		cs.UpdatedAt = now
	}
	return nil
}

// TableName 明确指定表名
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage 聊天消息模型
// 用于存储会话中的单条消息
type ChatMessage struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`  // 主键ID
	SessionID string         `gorm:"not null;index"`            // 所属会话ID
	Role      MessageRole    `gorm:"not null;type:varchar(20)"` // 消息角色
	Content   string         `gorm:"type:text;not null"`        // 消息内容
	IsError   bool           `gorm:"not null;default:false"`    // 是否为失败轮次的错误消息
	CreatedAt time.Time      `gorm:"not null"`                  // 创建时间
	Sources   datatypes.JSON `gorm:"type:json"`                 // 引用的段落
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (cm *ChatMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Source 表示消息引用的段落
type Source struct {
	Position int     `json:"position"`        // 段落位置
	Text     string  `json:"text"`            // 引用的文本
	Score    float32 `json:"score,omitempty"` // 匹配分数
}
