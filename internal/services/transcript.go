package services

import (
	"context"
	"encoding/json"

	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/fyerfyer/pdf-chat/internal/repository"
)

// TranscriptArchive 将会话记录写入数据库
type TranscriptArchive struct {
	repo repository.TranscriptRepository
}

// NewTranscriptArchive 创建会话记录归档
func NewTranscriptArchive(repo repository.TranscriptRepository) *TranscriptArchive {
	return &TranscriptArchive{repo: repo}
}

// RecordSession 保存会话的当前状态
func (a *TranscriptArchive) RecordSession(ctx context.Context, s *Session) error {
	return a.repo.WithContext(ctx).SaveSession(&models.ChatSession{
		ID:           s.ID,
		DocumentName: s.DocumentName,
		State:        string(s.State),
		Model:        s.Model,
		LastError:    s.LastError,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	})
}

// RecordMessage 追加一条消息
func (a *TranscriptArchive) RecordMessage(ctx context.Context, sessionID string, m Message) error {
	record := &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.MessageRole(m.Role),
		Content:   m.Content,
		IsError:   m.IsError,
		CreatedAt: m.CreatedAt,
	}

	if len(m.Sources) > 0 {
		sources := make([]models.Source, len(m.Sources))
		for i, src := range m.Sources {
			sources[i] = models.Source{Position: src.Position, Text: src.Text, Score: src.Score}
		}
		data, err := json.Marshal(sources)
		if err != nil {
			return err
		}
		record.Sources = data
	}

	return a.repo.WithContext(ctx).AppendMessage(record)
}

// ClearMessages 删除会话的全部消息
func (a *TranscriptArchive) ClearMessages(ctx context.Context, sessionID string) error {
	return a.repo.WithContext(ctx).ClearMessages(sessionID)
}
