package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 大模型客户端的模拟实现
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	args := m.Called(ctx, prompt, options)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

func (m *MockClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	args := m.Called(ctx, messages, options)
	resp, _ := args.Get(0).(*Response)
	return resp, args.Error(1)
}

func (m *MockClient) Name() string {
	return m.Called().String(0)
}
