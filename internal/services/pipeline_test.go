package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/internal/cache"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(texts ...string) []document.Content {
	chunks := make([]document.Content, len(texts))
	for i, text := range texts {
		chunks[i] = document.Content{Text: text, Index: i}
	}
	return chunks
}

func TestIndexServiceBuild(t *testing.T) {
	embedder := &keywordEmbedder{}
	svc := NewIndexService(WithEmbedBatch(2, 3))

	idx, err := svc.Build(context.Background(), "a.pdf", testChunks("alpha", "beta", "gamma"), embedder)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, "a.pdf", idx.DocumentName())
	assert.Equal(t, 3, idx.Len())
	count, err := idx.repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 2, embedder.callCount(), "3个段落按批大小2分为2批")

	doc, err := idx.repo.Get("a.pdf#1")
	require.NoError(t, err)
	assert.Equal(t, "beta", doc.Text)
	assert.Equal(t, 1, doc.Position)
}

func TestIndexServiceBuildErrors(t *testing.T) {
	svc := NewIndexService()
	ctx := context.Background()

	_, err := svc.Build(ctx, "a.pdf", nil, &keywordEmbedder{})
	assert.True(t, IsKind(err, KindMalformedDocument))
	assert.ErrorIs(t, err, document.ErrNoTextContent)

	_, err = svc.Build(ctx, "a.pdf", testChunks("alpha"), &keywordEmbedder{err: errors.New("timeout")})
	assert.True(t, IsKind(err, KindEmbeddingService))

	bad := NewIndexService(WithVectorConfig(vectordb.Config{Type: "memory", DistanceType: "manhattan"}))
	_, err = bad.Build(ctx, "a.pdf", testChunks("alpha"), &keywordEmbedder{})
	assert.True(t, IsKind(err, KindEmbeddingService))
}

func TestRetrieverQuery(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndexService().Build(ctx, "a.pdf",
		testChunks("beta one", "alpha two", "gamma three", "alpha alpha four", "delta five"),
		&keywordEmbedder{})
	require.NoError(t, err)

	chunks, err := NewRetriever().Query(ctx, idx, "alpha", 0)
	require.NoError(t, err)
	require.Len(t, chunks, DefaultTopK)

	// 两个alpha段落的相似度都接近1，其余相同分数的按位置排序
	assert.ElementsMatch(t, []int{1, 3}, []int{chunks[0].Position, chunks[1].Position})
	assert.Equal(t, 0, chunks[2].Position)
	assert.Equal(t, 2, chunks[3].Position)
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i-1].Score, chunks[i].Score)
	}

	chunks, err = NewRetriever(WithDefaultK(2)).Query(ctx, idx, "delta", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "delta five", chunks[0].Text)

	chunks, err = NewRetriever().Query(ctx, idx, "gamma", 10)
	require.NoError(t, err)
	assert.Len(t, chunks, 5, "k大于段落数时返回全部段落")
}

func TestRetrieverErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewRetriever().Query(ctx, nil, "alpha", 4)
	assert.True(t, IsKind(err, KindNoIndexLoaded))

	embedder := &keywordEmbedder{}
	idx, err := NewIndexService().Build(ctx, "a.pdf", testChunks("alpha"), embedder)
	require.NoError(t, err)

	embedder.fail(errors.New("unavailable"))
	_, err = NewRetriever().Query(ctx, idx, "alpha", 4)
	assert.True(t, IsKind(err, KindEmbeddingService))
}

func TestAnswerEngine(t *testing.T) {
	provider := newFakeProvider()
	engine := NewAnswerEngine(provider, WithRAGOptions(llm.WithRAGTemperature(0.9), llm.WithRAGMaxTokens(256)))

	chunks := []RetrievedChunk{
		{Position: 2, Text: "first chunk", Score: 0.9},
		{Position: 0, Text: "second chunk", Score: 0.5},
	}
	answer, err := engine.Answer(context.Background(), "question?", chunks, ModelConfig{Credential: "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, "The answer is alpha.", answer.Text)
	assert.Equal(t, llm.DefaultModel, answer.Model)
	assert.Equal(t, chunks, answer.Sources)
	assert.Equal(t, []string{"sk-test"}, provider.credentials)

	messages := provider.chat.lastMessages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "first chunk"+llm.ContextSeparator+"second chunk")

	opts := provider.chat.options[0]
	require.NotNil(t, opts.Temperature)
	assert.Equal(t, float32(0), *opts.Temperature, "温度固定为0")
	require.NotNil(t, opts.MaxTokens)
	assert.Equal(t, 256, *opts.MaxTokens)
}

func TestAnswerEngineErrors(t *testing.T) {
	ctx := context.Background()

	provider := newFakeProvider()
	engine := NewAnswerEngine(provider)

	_, err := engine.Answer(ctx, " ", nil, ModelConfig{})
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = engine.Answer(ctx, "q", nil, ModelConfig{Model: "davinci"})
	assert.True(t, IsKind(err, KindAnswerGeneration))
	assert.Equal(t, llm.ErrCodeUnknownModel, llm.CodeOf(err))
	assert.Empty(t, provider.models)

	provider.llmErr = llm.NewLLMError(llm.ErrCodeInvalidAPIKey, llm.ErrMsgInvalidAPIKey)
	_, err = engine.Answer(ctx, "q", nil, ModelConfig{Model: llm.ModelGPT4})
	assert.True(t, IsKind(err, KindAnswerGeneration))
	assert.Equal(t, llm.ErrCodeInvalidAPIKey, llm.CodeOf(err))

	provider.llmErr = nil
	provider.chat.err = llm.NewLLMError(llm.ErrCodeServerError, llm.ErrMsgServerError)
	_, err = engine.Answer(ctx, "q", nil, ModelConfig{Model: llm.ModelGPT4})
	assert.True(t, IsKind(err, KindAnswerGeneration))
	assert.True(t, llm.IsRetryable(err))
}

func TestPipelineError(t *testing.T) {
	base := errors.New("bad xref table")
	err := fmt.Errorf("load failed: %w", newPipelineError(KindMalformedDocument, base))

	assert.Equal(t, KindMalformedDocument, KindOf(err))
	assert.True(t, IsKind(err, KindMalformedDocument))
	assert.False(t, IsKind(err, KindEmbeddingService))
	assert.ErrorIs(t, err, base)

	var pe *PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "bad xref table", pe.Cause())
	assert.Equal(t, "malformed_document: bad xref table", pe.Error())

	bare := newPipelineError(KindNoIndexLoaded, nil)
	assert.Equal(t, "no_index_loaded", bare.Error())
	assert.Equal(t, "no_index_loaded", bare.Cause())

	assert.Equal(t, ErrorKind(""), KindOf(base))
	assert.False(t, IsKind(nil, KindNoIndexLoaded))
}

func TestRegistryProvider(t *testing.T) {
	p := &RegistryProvider{}

	embedder, err := p.Embedder("sk-test")
	require.NoError(t, err)
	assert.NotEmpty(t, embedder.Name())

	client, err := p.LLM("sk-test", llm.ModelGPT4oMini)
	require.NoError(t, err)
	assert.Equal(t, llm.ModelGPT4oMini, client.Name())

	_, err = p.Embedder("")
	assert.Error(t, err, "空凭证不能创建客户端")

	_, err = (&RegistryProvider{EmbedProvider: "unknown"}).Embedder("sk-test")
	assert.Error(t, err)
}

func TestRegistryProviderCacheIsPerCredential(t *testing.T) {
	// 只接受sk-good的嵌入服务
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer sk-good" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{1, 2}}},
		})
	}))
	defer server.Close()

	memCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	p := &RegistryProvider{
		EmbedOptions: []embedding.Option{
			embedding.WithBaseURL(server.URL),
			embedding.WithMaxRetries(0),
		},
		Cache:    memCache,
		CacheTTL: time.Minute,
	}

	good, err := p.Embedder("sk-good")
	require.NoError(t, err)
	_, err = good.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	bad, err := p.Embedder("sk-bad")
	require.NoError(t, err)
	_, err = bad.Embed(context.Background(), "alpha")
	require.Error(t, err, "无效凭证不能命中其他凭证的缓存")
	assert.Equal(t, embedding.ErrCodeInvalidAPIKey, embedding.CodeOf(err))
}
