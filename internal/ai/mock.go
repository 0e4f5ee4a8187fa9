package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for AI providers. Responses and Errs are
// consumed in order, one per call; once exhausted, Response and Err apply.
type MockProvider struct {
	Response  string
	Err       error
	Responses []string
	Errs      []error

	mu       sync.Mutex
	calls    int
	requests []CompletionRequest
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

// NewScriptedProvider returns each response once, in order.
func NewScriptedProvider(responses ...string) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	m.calls++
	m.requests = append(m.requests, req)

	err := m.Err
	if i < len(m.Errs) {
		err = m.Errs[i]
	}
	if err != nil {
		return CompletionResponse{}, err
	}

	content := m.Response
	if i < len(m.Responses) {
		content = m.Responses[i]
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}

// Calls returns how many times Complete was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or nil.
func (m *MockProvider) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

// Requests returns every request received so far.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}
