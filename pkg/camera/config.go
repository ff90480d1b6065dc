package camera

import (
	"fmt"
	"time"
)

// Config holds capture settings shared by all backends.
type Config struct {
	// Type selects the backend: pi, usb, or mock.
	Type string

	// USBIndex is the OpenCV device index for the usb backend.
	USBIndex int

	// Python is the interpreter used by the pi backend. It must be the
	// system interpreter, which is where picamera2 lives.
	Python string

	// Width and Height of the captured still.
	Width  int
	Height int

	// JPEGQuality for the encoded image (1-100).
	JPEGQuality int

	// CaptureTimeout bounds a single capture, child process included.
	CaptureTimeout time.Duration

	// ProbeTimeout bounds the pi backend's availability check.
	ProbeTimeout time.Duration
}

// DefaultConfig returns capture settings suitable for vision analysis.
func DefaultConfig() Config {
	return Config{
		Type:           TypeUSB,
		USBIndex:       0,
		Python:         "/usr/bin/python3",
		Width:          1280,
		Height:         720,
		JPEGQuality:    90,
		CaptureTimeout: 30 * time.Second,
		ProbeTimeout:   10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Type {
	case TypePi, TypeUSB, TypeMock:
	default:
		return fmt.Errorf("camera: unknown type %q", c.Type)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("camera: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("camera: jpeg quality %d out of range", c.JPEGQuality)
	}
	if c.CaptureTimeout <= 0 {
		return fmt.Errorf("camera: capture timeout must be positive")
	}
	return nil
}
