package providers

import (
	"context"
	"sync"
)

// MockProvider replays a scripted sequence of responses or errors. Tests use
// it to drive the engine loop without network access.
type MockProvider struct {
	mu       sync.Mutex
	script   []MockTurn
	Requests []ChatRequest
}

// MockTurn is one scripted provider turn.
type MockTurn struct {
	Resp *ChatResponse
	Err  error
}

// NewMockProvider builds a provider that returns the given turns in order.
// Once the script is exhausted the last turn repeats.
func NewMockProvider(turns ...MockTurn) *MockProvider {
	return &MockProvider{script: turns}
}

// MockText is shorthand for a plain-text final response.
func MockText(text string) MockTurn {
	return MockTurn{Resp: &ChatResponse{Content: text, FinishReason: "stop", Usage: &Usage{}}}
}

func (m *MockProvider) Name() string         { return "mock" }
func (m *MockProvider) DefaultModel() string { return "mock-model" }

func (m *MockProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)

	idx := len(m.Requests) - 1
	if idx >= len(m.script) {
		idx = len(m.script) - 1
	}
	if idx < 0 {
		return &ChatResponse{Content: "", FinishReason: "stop"}, nil
	}
	turn := m.script[idx]
	if turn.Err != nil {
		return nil, turn.Err
	}
	return turn.Resp, nil
}
