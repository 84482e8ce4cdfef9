package embedding

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient 嵌入客户端的模拟实现
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	switch v := args.Get(0).(type) {
	case func(context.Context, []string) [][]float32:
		return v(ctx, texts), args.Error(1)
	case [][]float32:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) Name() string {
	return m.Called().String(0)
}
