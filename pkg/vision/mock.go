package vision

import (
	"context"
	"sync"
)

// MockAnalyzer is an in-memory Analyzer for tests.
type MockAnalyzer struct {
	mu sync.Mutex

	// Response is returned by Analyze when Err is nil.
	Response string

	// Err, when set, is returned by Analyze.
	Err error

	// Delayed, when set, blocks Analyze until the context is done.
	Delayed bool

	calls []Intent
}

// Analyze records the intent and returns the configured result.
func (m *MockAnalyzer) Analyze(ctx context.Context, intent Intent, jpeg []byte) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, intent)
	delayed, resp, err := m.Delayed, m.Response, m.Err
	m.mu.Unlock()

	if delayed {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return resp, nil
}

// Calls returns the intents Analyze was invoked with.
func (m *MockAnalyzer) Calls() []Intent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Intent(nil), m.calls...)
}
