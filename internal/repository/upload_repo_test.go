package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadRepository(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUploadRepository()

	first := &models.Upload{
		SessionID:  "session-1",
		FileName:   "a.pdf",
		StorageKey: "uploads/a.pdf",
		FileSize:   100,
		UploadedAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, repo.Create(first))
	assert.NotEmpty(t, first.ID)

	second := &models.Upload{SessionID: "session-1", FileName: "b.pdf", StorageKey: "uploads/b.pdf", FileSize: 200}
	require.NoError(t, repo.Create(second))

	got, err := repo.GetByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", got.FileName)

	list, err := repo.ListBySession("session-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b.pdf", list[0].FileName)

	_, err = repo.GetByID("missing")
	assert.True(t, errors.Is(err, models.ErrUploadNotFound))

	assert.Error(t, repo.Create(&models.Upload{FileName: "c.pdf"}))
}
