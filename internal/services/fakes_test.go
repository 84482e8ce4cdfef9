package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/fyerfyer/pdf-chat/internal/embedding"
	"github.com/fyerfyer/pdf-chat/internal/llm"
)

// testVocabulary 关键词向量的各个维度
var testVocabulary = []string{"alpha", "beta", "gamma", "delta", "omega"}

// keywordEmbedder 按关键词出现次数生成向量的嵌入客户端
type keywordEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	err   error
}

func (e *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.texts = append(e.texts, texts...)
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float32, len(testVocabulary)+1)
		for j, word := range testVocabulary {
			vec[j] = float32(strings.Count(lower, word))
		}
		vec[len(testVocabulary)] = 0.01
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *keywordEmbedder) Name() string {
	return "keyword"
}

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *keywordEmbedder) fail(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// recordingLLM 记录请求消息的对话客户端
type recordingLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	messages [][]llm.Message
	options  []llm.ChatOptions
}

func (c *recordingLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return c.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (c *recordingLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	var opts llm.ChatOptions
	for _, opt := range options {
		opt(&opts)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, messages)
	c.options = append(c.options, opts)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: c.reply}, nil
}

func (c *recordingLLM) Name() string {
	return "recording"
}

func (c *recordingLLM) lastMessages() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

// fakeProvider 返回固定客户端并记录使用的凭证和模型
type fakeProvider struct {
	embedder    *keywordEmbedder
	chat        *recordingLLM
	embedErr    error
	llmErr      error
	credentials []string
	models      []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		embedder: &keywordEmbedder{},
		chat:     &recordingLLM{reply: "The answer is alpha."},
	}
}

func (p *fakeProvider) Embedder(credential string) (embedding.Client, error) {
	p.credentials = append(p.credentials, credential)
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return p.embedder, nil
}

func (p *fakeProvider) LLM(credential, model string) (llm.Client, error) {
	p.credentials = append(p.credentials, credential)
	p.models = append(p.models, model)
	if p.llmErr != nil {
		return nil, p.llmErr
	}
	return p.chat, nil
}

// stubExtractor 返回固定文本的提取器
type stubExtractor struct {
	text  string
	err   error
	calls int
}

func (e *stubExtractor) Extract(r io.Reader) (string, error) {
	e.calls++
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	return e.text, e.err
}

func (e *stubExtractor) ExtractFile(filePath string) (string, error) {
	return "", errors.New("not supported")
}
