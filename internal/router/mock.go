package router

import (
	"context"
	"sync"
)

// MockProvider is a scripted provider for tests. Responses are returned in
// order; the last one repeats once the script is exhausted.
type MockProvider struct {
	ProviderName string
	Responses    []string
	Errs         []error // aligned with Responses; nil entries mean success
	Unavailable  bool
	CostPerCall  float64

	mu    sync.Mutex
	calls int
}

// Name returns the mock's provider name.
func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

// Calls reports how many generation calls the mock has served.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// GenerateText returns the next scripted response.
func (m *MockProvider) GenerateText(ctx context.Context, req Request) (*Generation, error) {
	return m.next(req)
}

// GenerateJSON returns the next scripted response.
func (m *MockProvider) GenerateJSON(ctx context.Context, req Request) (*Generation, error) {
	return m.next(req)
}

// EstimateCost returns the fixed per-call cost.
func (m *MockProvider) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	return m.CostPerCall
}

// IsAvailable reports the scripted availability.
func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return !m.Unavailable
}

func (m *MockProvider) next(req Request) (*Generation, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.mu.Unlock()

	if len(m.Errs) > 0 {
		i := idx
		if i >= len(m.Errs) {
			i = len(m.Errs) - 1
		}
		if err := m.Errs[i]; err != nil {
			return nil, err
		}
	}

	content := ""
	if len(m.Responses) > 0 {
		i := idx
		if i >= len(m.Responses) {
			i = len(m.Responses) - 1
		}
		content = m.Responses[i]
	}

	return &Generation{
		Content:      content,
		Model:        m.Name() + "-model",
		InputTokens:  len(req.Prompt) / 4,
		OutputTokens: len(content) / 4,
	}, nil
}
