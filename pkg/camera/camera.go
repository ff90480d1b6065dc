// Package camera captures single JPEG stills for vision analysis.
//
// Two real backends exist: a USB webcam driven through OpenCV, and the Pi
// camera module driven through a short-lived Python subprocess (picamera2 is
// only importable from the system interpreter, so the capture runs out of
// process). Both return one encoded JPEG per call; neither holds the device
// between captures longer than it has to.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Backend types accepted by New.
const (
	TypePi   = "pi"
	TypeUSB  = "usb"
	TypeMock = "mock"
)

// Errors returned by capture backends.
var (
	// ErrUnavailable indicates the device could not be opened or probed.
	ErrUnavailable = errors.New("camera: device unavailable")

	// ErrCaptureTimeout indicates the capture did not finish within the
	// configured bound. The caller always gets this instead of a hang.
	ErrCaptureTimeout = errors.New("camera: capture timed out")

	// ErrEmptyFrame indicates the device opened but produced no image.
	ErrEmptyFrame = errors.New("camera: empty frame")
)

// BridgeError reports a failed capture child process.
type BridgeError struct {
	ExitCode int
	Stderr   string
}

func (e *BridgeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("camera: bridge exited %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("camera: bridge exited %d", e.ExitCode)
}

// Camera captures one JPEG still per call.
//
// The pi backend bounds Capture itself by killing the child at the deadline.
// The usb backend honors ctx between OpenCV calls but a single blocking read
// cannot be interrupted, so callers needing a hard bound wrap Capture in
// their own deadline (the orchestrator's tool timeout does this).
type Camera interface {
	// Capture returns one encoded JPEG image.
	Capture(ctx context.Context) ([]byte, error)

	// Available reports whether the device can be used right now.
	Available(ctx context.Context) bool

	// Close releases the device.
	Close() error
}

// New creates the backend named by cfg.Type.
func New(cfg Config, logger *slog.Logger) (Camera, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case TypePi:
		return NewPiCamera(cfg, logger), nil
	case TypeUSB:
		return NewUSBCamera(cfg, logger), nil
	case TypeMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("camera: unknown type %q", cfg.Type)
	}
}
