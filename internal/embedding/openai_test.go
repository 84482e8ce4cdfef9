package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingServer 模拟OpenAI的/embeddings接口
// 返回的向量第一维为输入文本的长度，且以逆序返回数据
// 请求指定dimensions时按该维度返回，其余维度填1
func fakeEmbeddingServer(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		width := 2
		if req.Dimensions > 0 {
			width = req.Dimensions
		}
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, width)
			vec[0] = float32(len(req.Input[i]))
			for j := 1; j < width; j++ {
				vec[j] = 1
			}
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": vec,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	}))
}

// errorServer 返回指定状态码和OpenAI格式错误体的服务
func errorServer(status int, errType string, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "upstream says no",
				"type":    errType,
			},
		})
	}))
}

func newTestOpenAIClient(t *testing.T, baseURL string) Client {
	t.Helper()
	client, err := NewOpenAIClient(
		WithAPIKey("test-key"),
		WithBaseURL(baseURL),
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
		WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	return client
}

func TestOpenAIClientRequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIClient()
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidAPIKey, CodeOf(err))
}

func TestOpenAIClientRegistered(t *testing.T) {
	client, err := NewClient("openai", WithAPIKey("test-key"))
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-ada-002", client.Name())

	_, err = NewClient("unknown")
	assert.Equal(t, ErrCodeInvalidRequest, CodeOf(err))
}

func TestOpenAIEmbedBatchPreservesOrder(t *testing.T) {
	var calls int32
	server := fakeEmbeddingServer(t, &calls)
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL)
	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(3), vectors[1][0])
	assert.Equal(t, float32(2), vectors[2][0])
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIEmbedBatchSendsDimensions(t *testing.T) {
	var calls int32
	server := fakeEmbeddingServer(t, &calls)
	defer server.Close()

	client, err := NewOpenAIClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithModel("text-embedding-3-small"),
		WithDimensions(8),
	)
	require.NoError(t, err)

	vectors, err := client.EmbedBatch(context.Background(), []string{"abc", "de"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 8)
	assert.Len(t, vectors[1], 8)
	assert.Equal(t, float32(3), vectors[0][0])

	// 未配置维度时沿用模型默认宽度
	plain := newTestOpenAIClient(t, server.URL)
	vec, err := plain.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestOpenAIEmbedRejectsEmptyText(t *testing.T) {
	client := newTestOpenAIClient(t, "http://127.0.0.1:1")

	_, err := client.Embed(context.Background(), "")
	assert.Equal(t, ErrCodeEmptyInput, CodeOf(err))

	vectors, err := client.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		errType   string
		wantCode  int
		wantCalls int32
	}{
		{"unauthorized", http.StatusUnauthorized, "invalid_request_error", ErrCodeInvalidAPIKey, 1},
		{"bad request", http.StatusBadRequest, "invalid_request_error", ErrCodeInvalidRequest, 1},
		{"quota", http.StatusTooManyRequests, "insufficient_quota", ErrCodeQuotaExceeded, 1},
		{"rate limited", http.StatusTooManyRequests, "requests", ErrCodeRateLimited, 3},
		{"server error", http.StatusInternalServerError, "server_error", ErrCodeServerError, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := errorServer(tt.status, tt.errType, &calls)
			defer server.Close()

			client := newTestOpenAIClient(t, server.URL)
			_, err := client.Embed(context.Background(), "hello")
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, CodeOf(err))
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestOpenAIEmbedContextCancelled(t *testing.T) {
	var calls int32
	server := fakeEmbeddingServer(t, &calls)
	defer server.Close()

	client := newTestOpenAIClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Embed(ctx, "hello")
	require.Error(t, err)
	assert.Equal(t, ErrCodeTimeout, CodeOf(err))
}
