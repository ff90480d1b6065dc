package camera

import (
	"context"
	"sync"
	"time"
)

// Mock is an in-memory Camera for tests and development without hardware.
type Mock struct {
	mu sync.Mutex

	// Image is returned by Capture when Err is nil.
	Image []byte

	// Err, when set, is returned by Capture.
	Err error

	// Delay is waited before Capture returns, honoring the context.
	Delay time.Duration

	// Unavailable makes Available report false.
	Unavailable bool

	captures int
}

// NewMock creates a mock camera returning a tiny placeholder JPEG.
func NewMock() *Mock {
	// Just the JPEG SOI/EOI markers; enough to be recognizably an image.
	return &Mock{Image: []byte{0xFF, 0xD8, 0xFF, 0xD9}}
}

// Capture returns the configured image or error after the configured delay.
func (m *Mock) Capture(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	m.captures++
	delay, img, err := m.Delay, m.Image, m.Err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrCaptureTimeout
		}
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Available reports the configured availability.
func (m *Mock) Available(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unavailable
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Captures returns how many times Capture was called.
func (m *Mock) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}
