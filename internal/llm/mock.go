package llm

import (
	"context"
	"slices"
	"sync"
)

// MockClient answers "mock response" unless CompleteFunc is set, and
// keeps every request it receives.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	mu   sync.Mutex
	seen []CompletionRequest
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.seen = append(m.seen, req)
	m.mu.Unlock()
	if m.CompleteFunc == nil {
		return &CompletionResponse{Content: "mock response"}, nil
	}
	return m.CompleteFunc(ctx, req)
}

func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.seen)
}
