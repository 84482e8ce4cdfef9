package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fyerfyer/pdf-chat/api/handler"
	"github.com/fyerfyer/pdf-chat/api/model"
	"github.com/fyerfyer/pdf-chat/internal/database"
	"github.com/fyerfyer/pdf-chat/internal/document"
	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
	"github.com/fyerfyer/pdf-chat/internal/repository"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubEmbedder 按字母出现次数生成向量的嵌入客户端
type stubEmbedder struct {
	mu  sync.Mutex
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 26)
		for _, r := range strings.ToLower(text) {
			if r >= 'a' && r <= 'z' {
				vec[r-'a']++
			}
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *stubEmbedder) Name() string { return "stub-embedding" }

// stubLLM 返回固定回答的对话客户端
type stubLLM struct {
	model string
	err   error
}

func (c *stubLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return c.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (c *stubLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: "answer from " + c.model, ModelName: c.model}, nil
}

func (c *stubLLM) Name() string { return c.model }

// stubProvider 测试用的客户端提供者
type stubProvider struct {
	embedder *stubEmbedder
	llmErr   error
}

func (p *stubProvider) Embedder(credential string) (embedding.Client, error) {
	return p.embedder, nil
}

func (p *stubProvider) LLM(credential, modelName string) (llm.Client, error) {
	return &stubLLM{model: modelName, err: p.llmErr}, nil
}

// testEnv API测试环境
type testEnv struct {
	Router   *gin.Engine
	Provider *stubProvider
	Store    *services.SessionStore
	Uploads  repository.UploadRepository
}

func setupTestEnv(t *testing.T, archive bool) *testEnv {
	gin.SetMode(gin.TestMode)

	splitter, err := document.NewCharacterSplitter(document.DefaultSplitterConfig())
	require.NoError(t, err)

	provider := &stubProvider{embedder: &stubEmbedder{}}
	controller := services.NewSessionController(
		document.NewPDFExtractor(),
		splitter,
		services.NewIndexService(),
		services.NewRetriever(),
		services.NewAnswerEngine(provider),
		provider,
	)
	store := services.NewSessionStore(time.Hour, time.Minute, nil)

	env := &testEnv{Provider: provider, Store: store}

	var opts []handler.SessionHandlerOption
	if archive {
		fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
		require.NoError(t, err)

		dbName := fmt.Sprintf("file:memdb_api_%d?mode=memory&cache=shared", time.Now().UnixNano())
		db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
		require.NoError(t, err)
		require.NoError(t, db.AutoMigrate(database.Models()...))

		env.Uploads = repository.NewUploadRepositoryWithDB(db)
		opts = append(opts, handler.WithUploadArchive(fileStorage, env.Uploads))
	}

	env.Router = SetupRouter(handler.NewSessionHandler(controller, store, opts...))
	return env
}

// apiResponse 解码后的响应
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return env.serve(t, req)
}

func (env *testEnv) upload(t *testing.T, sessionID, filename string, content []byte) (*httptest.ResponseRecorder, apiResponse) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+sessionID+"/document", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return env.serve(t, req)
}

func (env *testEnv) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, apiResponse) {
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "response: %s", w.Body.String())
	return w, resp
}

func decodeData(t *testing.T, resp apiResponse, v interface{}) {
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func (env *testEnv) createSession(t *testing.T, body interface{}) services.SessionView {
	w, resp := env.do(t, http.MethodPost, "/api/sessions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view services.SessionView
	decodeData(t, resp, &view)
	return view
}

// buildPDF 生成测试用PDF
func buildPDF(t *testing.T, text string) []byte {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	pdf.MultiCell(0, 10, text, "", "", false)

	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestHealthAndModels(t *testing.T) {
	env := setupTestEnv(t, false)

	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w2, resp := env.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w2.Code)

	var models model.ModelsResponse
	decodeData(t, resp, &models)
	assert.Equal(t, llm.AllowedModels(), models.Models)
	assert.Equal(t, llm.DefaultModel, models.Default)
}

func TestCreateSession(t *testing.T) {
	env := setupTestEnv(t, false)

	view := env.createSession(t, nil)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, services.StateEmpty, view.State)
	assert.True(t, view.CredentialRequired)
	assert.Equal(t, services.MsgCredentialRequired, view.Notice)

	view = env.createSession(t, model.CreateSessionRequest{APIKey: "sk-test", Model: llm.ModelGPT4})
	assert.False(t, view.CredentialRequired)
	assert.Equal(t, llm.ModelGPT4, view.Model)
	assert.Equal(t, 2, env.Store.Count())

	w, resp := env.do(t, http.MethodPost, "/api/sessions", model.CreateSessionRequest{Model: "gpt-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, 2, env.Store.Count(), "无效模型不应创建会话")
}

func TestUploadRequiresCredential(t *testing.T) {
	env := setupTestEnv(t, false)
	view := env.createSession(t, nil)

	w, resp := env.upload(t, view.ID, "doc.pdf", buildPDF(t, "alpha beta"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, services.MsgCredentialRequired, resp.Message)
	assert.NotEmpty(t, resp.TraceID)

	var data model.ErrorData
	decodeData(t, resp, &data)
	assert.Equal(t, string(services.KindMissingCredential), data.Kind)

	_, resp = env.do(t, http.MethodGet, "/api/sessions/"+view.ID, nil)
	var got services.SessionView
	decodeData(t, resp, &got)
	assert.Equal(t, services.StateEmpty, got.State)
}

func TestDocumentLifecycle(t *testing.T) {
	env := setupTestEnv(t, false)
	view := env.createSession(t, nil)
	base := "/api/sessions/" + view.ID

	w, _ := env.do(t, http.MethodPut, base+"/credential", model.CredentialRequest{APIKey: "sk-test"})
	require.Equal(t, http.StatusOK, w.Code)

	// 未加载文档时提问
	w, resp := env.do(t, http.MethodPost, base+"/questions", model.QuestionRequest{Question: "what?"})
	assert.Equal(t, http.StatusConflict, w.Code)
	var errData model.ErrorData
	decodeData(t, resp, &errData)
	assert.Equal(t, string(services.KindNoIndexLoaded), errData.Kind)

	// 加载文档
	w, resp = env.upload(t, view.ID, "doc.pdf", buildPDF(t, "The capital of France is Paris."))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var docResp model.DocumentResponse
	decodeData(t, resp, &docResp)
	assert.Empty(t, docResp.UploadID)
	assert.Equal(t, services.StateReady, docResp.Session.State)
	assert.Equal(t, "doc.pdf", docResp.Session.DocumentName)
	assert.Equal(t, 1, docResp.Session.ChunkCount)
	require.Len(t, docResp.Session.Messages, 1)
	assert.Equal(t, services.MsgDocumentReady, docResp.Session.Messages[0].Content)

	// 提问
	w, resp = env.do(t, http.MethodPost, base+"/questions", model.QuestionRequest{Question: " capital? "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var answer model.AnswerResponse
	decodeData(t, resp, &answer)
	assert.Equal(t, "capital?", answer.Question)
	assert.Equal(t, "answer from "+llm.DefaultModel, answer.Answer)
	require.Len(t, answer.Sources, 1)
	assert.Contains(t, answer.Sources[0].Text, "Paris")

	// 切换模型后回答使用新模型
	w, _ = env.do(t, http.MethodPut, base+"/model", model.ModelRequest{Model: "unknown-model"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = env.do(t, http.MethodPut, base+"/model", model.ModelRequest{Model: llm.ModelGPT4oMini})
	require.Equal(t, http.StatusOK, w.Code)

	_, resp = env.do(t, http.MethodPost, base+"/questions", model.QuestionRequest{Question: "again?"})
	decodeData(t, resp, &answer)
	assert.Equal(t, llm.ModelGPT4oMini, answer.Model)

	// 历史
	w, resp = env.do(t, http.MethodGet, base+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var messages model.MessagesResponse
	decodeData(t, resp, &messages)
	assert.Equal(t, 5, messages.Total)
	assert.Len(t, messages.Messages, 5)

	_, resp = env.do(t, http.MethodGet, base+"/messages?offset=1&limit=2", nil)
	decodeData(t, resp, &messages)
	assert.Equal(t, 5, messages.Total)
	require.Len(t, messages.Messages, 2)
	assert.Equal(t, services.RoleUser, messages.Messages[0].Role)

	// 清除文档
	w, resp = env.do(t, http.MethodDelete, base+"/document", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reset services.SessionView
	decodeData(t, resp, &reset)
	assert.Equal(t, services.StateEmpty, reset.State)
	assert.Empty(t, reset.Messages)

	// 删除会话
	w, _ = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = env.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadMalformedDocument(t *testing.T) {
	env := setupTestEnv(t, false)
	view := env.createSession(t, model.CreateSessionRequest{APIKey: "sk-test"})

	w, resp := env.upload(t, view.ID, "broken.pdf", []byte("this is not a pdf"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var data model.ErrorData
	decodeData(t, resp, &data)
	assert.Equal(t, string(services.KindMalformedDocument), data.Kind)

	_, resp = env.do(t, http.MethodGet, "/api/sessions/"+view.ID, nil)
	var got services.SessionView
	decodeData(t, resp, &got)
	assert.Equal(t, services.StateError, got.State)
	assert.NotEmpty(t, got.LastError)

	w, _ = env.upload(t, view.ID, "notes.txt", []byte("plain text"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadEmbeddingFailure(t *testing.T) {
	env := setupTestEnv(t, false)
	view := env.createSession(t, model.CreateSessionRequest{APIKey: "sk-test"})

	env.Provider.embedder.err = embedding.NewEmbeddingError(embedding.ErrCodeRateLimited, "rate limited")
	w, resp := env.upload(t, view.ID, "doc.pdf", buildPDF(t, "some text"))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	var data model.ErrorData
	decodeData(t, resp, &data)
	assert.Equal(t, string(services.KindEmbeddingService), data.Kind)
}

func TestAskAnswerFailure(t *testing.T) {
	env := setupTestEnv(t, false)
	view := env.createSession(t, model.CreateSessionRequest{APIKey: "sk-test"})
	base := "/api/sessions/" + view.ID

	w, _ := env.upload(t, view.ID, "doc.pdf", buildPDF(t, "some text"))
	require.Equal(t, http.StatusOK, w.Code)

	env.Provider.llmErr = errors.New("upstream unavailable")
	w, resp := env.do(t, http.MethodPost, base+"/questions", model.QuestionRequest{Question: "what?"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.True(t, strings.HasPrefix(resp.Message, services.MsgTurnFailedPrefix))

	// 失败的轮次记入历史，会话仍然可用
	_, resp = env.do(t, http.MethodGet, base, nil)
	var got services.SessionView
	decodeData(t, resp, &got)
	assert.Equal(t, services.StateReady, got.State)
	require.Len(t, got.Messages, 3)
	assert.True(t, got.Messages[2].IsError)

	w, _ = env.do(t, http.MethodPost, base+"/questions", model.QuestionRequest{Question: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownSession(t *testing.T) {
	env := setupTestEnv(t, false)

	w, resp := env.do(t, http.MethodGet, "/api/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	w, _ = env.do(t, http.MethodPost, "/api/sessions/missing/questions", model.QuestionRequest{Question: "q"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadArchive(t *testing.T) {
	env := setupTestEnv(t, true)
	view := env.createSession(t, model.CreateSessionRequest{APIKey: "sk-test"})

	w, resp := env.upload(t, view.ID, "doc.pdf", buildPDF(t, "archived text"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var docResp model.DocumentResponse
	decodeData(t, resp, &docResp)
	require.NotEmpty(t, docResp.UploadID)

	uploads, err := env.Uploads.ListBySession(view.ID)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, docResp.UploadID, uploads[0].ID)
	assert.Equal(t, "doc.pdf", uploads[0].FileName)

	// 同名文档重复上传不重建，也不再归档
	w, resp = env.upload(t, view.ID, "doc.pdf", buildPDF(t, "archived text"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var again model.DocumentResponse
	decodeData(t, resp, &again)
	assert.Empty(t, again.UploadID)
	uploads, err = env.Uploads.ListBySession(view.ID)
	require.NoError(t, err)
	assert.Len(t, uploads, 1)

	// 新文档会重建并归档
	w, _ = env.upload(t, view.ID, "next.pdf", buildPDF(t, "another text"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	uploads, err = env.Uploads.ListBySession(view.ID)
	require.NoError(t, err)
	assert.Len(t, uploads, 2)

	// 缺少凭证时不归档
	other := env.createSession(t, nil)
	w, _ = env.upload(t, other.ID, "doc.pdf", buildPDF(t, "archived text"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	uploads, err = env.Uploads.ListBySession(other.ID)
	require.NoError(t, err)
	assert.Empty(t, uploads)
}
