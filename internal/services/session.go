package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/google/uuid"
)

// State 会话状态
type State string

const (
	StateEmpty    State = "empty"    // 未加载文档
	StateBuilding State = "building" // 正在提取、切分、建立索引
	StateReady    State = "ready"    // 索引就绪，可以提问
	StateError    State = "error"    // 当前文档构建失败
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 会话消息
type Message struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	IsError   bool             `json:"is_error,omitempty"`
	Sources   []RetrievedChunk `json:"sources,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Session 一个用户的会话状态
// 索引和消息只由SessionController修改
type Session struct {
	ID           string
	DocumentName string
	State        State
	Messages     []Message
	Model        string
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	credential string
	index      *Index

	mu      sync.Mutex  // 由SessionStore用于串行化同一会话的操作
	deleted atomic.Bool // 会话已从存储中移除
}

// newSession 创建空会话
func newSession(model string) *Session {
	if model == "" {
		model = llm.DefaultModel
	}
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		State:     StateEmpty,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CredentialRequired 判断是否需要先提供API密钥
func (s *Session) CredentialRequired() bool {
	return s.credential == ""
}

// Index 返回当前索引，没有时返回nil
func (s *Session) Index() *Index {
	return s.index
}

// release 释放会话持有的索引
func (s *Session) release() {
	if s.index != nil {
		_ = s.index.Close()
		s.index = nil
	}
}

// SessionView 会话的可序列化快照，不包含凭证
type SessionView struct {
	ID                 string    `json:"id"`
	DocumentName       string    `json:"document_name"`
	State              State     `json:"state"`
	Model              string    `json:"model"`
	CredentialRequired bool      `json:"credential_required"`
	Notice             string    `json:"notice,omitempty"`
	LastError          string    `json:"last_error,omitempty"`
	ChunkCount         int       `json:"chunk_count"`
	Messages           []Message `json:"messages"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// View 返回会话快照
func (s *Session) View() SessionView {
	view := SessionView{
		ID:                 s.ID,
		DocumentName:       s.DocumentName,
		State:              s.State,
		Model:              s.Model,
		CredentialRequired: s.CredentialRequired(),
		LastError:          s.LastError,
		Messages:           append([]Message{}, s.Messages...),
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	if view.CredentialRequired {
		view.Notice = MsgCredentialRequired
	}
	if s.index != nil {
		view.ChunkCount = s.index.Len()
	}
	return view
}
