package conversation

import (
	"context"
	"sync"
)

// ToolResult is one recorded SubmitToolResult call.
type ToolResult struct {
	CallID  string
	Result  string
	IsError bool
}

// Mock is an in-memory Client for tests.
type Mock struct {
	mu sync.RWMutex

	connected bool

	// Callbacks
	onAudio        func(audio []byte)
	onAudioDone    func()
	onTranscript   func(role, text string)
	onToolCall     func(call ToolCall)
	onInterruption func()
	onError        func(err error)
	onDisconnect   func(err error)

	// Configurable behavior
	ConnectFunc          func(ctx context.Context) error
	SendAudioFunc        func(audio []byte) error
	SubmitToolResultFunc func(callID, result string, isError bool) error

	// Captured calls for assertions
	AudioSent   [][]byte
	ToolResults []ToolResult
	CloseCount  int
}

// NewMock creates a new Mock client.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Client.
func (m *Mock) Connect(ctx context.Context) error {
	if m.ConnectFunc != nil {
		if err := m.ConnectFunc(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		return ErrAlreadyConnected
	}
	m.connected = true
	return nil
}

// Close implements Client.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.connected = false
	m.CloseCount++
	fn := m.onDisconnect
	m.onDisconnect = nil
	m.mu.Unlock()

	if fn != nil {
		fn(nil)
	}
	return nil
}

// IsConnected implements Client.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SendAudio implements Client.
func (m *Mock) SendAudio(audio []byte) error {
	if m.SendAudioFunc != nil {
		return m.SendAudioFunc(audio)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.AudioSent = append(m.AudioSent, audio)
	return nil
}

// SubmitToolResult implements Client.
func (m *Mock) SubmitToolResult(callID, result string, isError bool) error {
	if m.SubmitToolResultFunc != nil {
		return m.SubmitToolResultFunc(callID, result, isError)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.ToolResults = append(m.ToolResults, ToolResult{CallID: callID, Result: result, IsError: isError})
	return nil
}

// OnAudio implements Client.
func (m *Mock) OnAudio(fn func(audio []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudio = fn
}

// OnAudioDone implements Client.
func (m *Mock) OnAudioDone(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudioDone = fn
}

// OnTranscript implements Client.
func (m *Mock) OnTranscript(fn func(role, text string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTranscript = fn
}

// OnToolCall implements Client.
func (m *Mock) OnToolCall(fn func(call ToolCall)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onToolCall = fn
}

// OnInterruption implements Client.
func (m *Mock) OnInterruption(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onInterruption = fn
}

// OnError implements Client.
func (m *Mock) OnError(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// OnDisconnect implements Client.
func (m *Mock) OnDisconnect(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisconnect = fn
}

// Test helpers

// SimulateAudio triggers the OnAudio callback with the given audio.
func (m *Mock) SimulateAudio(audio []byte) {
	m.mu.RLock()
	fn := m.onAudio
	m.mu.RUnlock()
	if fn != nil {
		fn(audio)
	}
}

// SimulateAudioDone triggers the OnAudioDone callback.
func (m *Mock) SimulateAudioDone() {
	m.mu.RLock()
	fn := m.onAudioDone
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateTranscript triggers the OnTranscript callback.
func (m *Mock) SimulateTranscript(role, text string) {
	m.mu.RLock()
	fn := m.onTranscript
	m.mu.RUnlock()
	if fn != nil {
		fn(role, text)
	}
}

// SimulateToolCall triggers the OnToolCall callback.
func (m *Mock) SimulateToolCall(call ToolCall) {
	m.mu.RLock()
	fn := m.onToolCall
	m.mu.RUnlock()
	if fn != nil {
		fn(call)
	}
}

// SimulateInterruption triggers the OnInterruption callback.
func (m *Mock) SimulateInterruption() {
	m.mu.RLock()
	fn := m.onInterruption
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// SimulateError triggers the OnError callback.
func (m *Mock) SimulateError(err error) {
	m.mu.RLock()
	fn := m.onError
	m.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// SimulateDisconnect marks the client disconnected and triggers OnDisconnect.
func (m *Mock) SimulateDisconnect(err error) {
	m.mu.Lock()
	m.connected = false
	fn := m.onDisconnect
	m.onDisconnect = nil
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// AudioSentCount returns how many audio chunks were sent.
func (m *Mock) AudioSentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.AudioSent)
}

// Results returns a copy of the recorded tool results.
func (m *Mock) Results() []ToolResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolResult(nil), m.ToolResults...)
}

// Ensure Mock implements Client.
var _ Client = (*Mock)(nil)
