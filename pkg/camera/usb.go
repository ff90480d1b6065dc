package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// staleFrameFlush is how many buffered frames to discard before the real
// capture. Webcams queue frames internally; without the flush a capture can
// return an image from seconds ago.
const staleFrameFlush = 5

// USBCamera captures stills from a webcam through OpenCV.
// The device is opened lazily on first capture and kept open after that.
type USBCamera struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

// NewUSBCamera creates a USB webcam backend. The device is not opened yet.
func NewUSBCamera(cfg Config, logger *slog.Logger) *USBCamera {
	if logger == nil {
		logger = slog.Default()
	}
	return &USBCamera{
		cfg:    cfg,
		logger: logger.With("component", "camera", "backend", TypeUSB),
	}
}

// Capture grabs a fresh frame and encodes it as JPEG.
func (c *USBCamera) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}

	start := time.Now()

	// Drain the driver's frame queue so the still is current.
	c.cap.Grab(staleFrameFlush)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.NewMat()
	defer img.Close()

	if ok := c.cap.Read(&img); !ok || img.Empty() {
		// A failed read usually means the device went away; drop the
		// handle so the next capture reopens it.
		c.closeLocked()
		if !ok {
			return nil, fmt.Errorf("%w: read from device %d failed", ErrUnavailable, c.cfg.USBIndex)
		}
		return nil, ErrEmptyFrame
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img,
		[]int{gocv.IMWriteJpegQuality, c.cfg.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode jpeg: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	c.logger.Debug("captured still",
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return data, nil
}

// Available reports whether the device can be opened.
func (c *USBCamera) Available(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureOpen() == nil
}

// Close releases the device handle.
func (c *USBCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *USBCamera) ensureOpen() error {
	if c.cap != nil {
		return nil
	}

	cap, err := gocv.OpenVideoCapture(c.cfg.USBIndex)
	if err != nil {
		return fmt.Errorf("%w: open device %d: %v", ErrUnavailable, c.cfg.USBIndex, err)
	}
	cap.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))

	c.cap = cap
	c.logger.Info("opened usb camera",
		"index", c.cfg.USBIndex,
		"width", c.cfg.Width,
		"height", c.cfg.Height,
	)
	return nil
}

func (c *USBCamera) closeLocked() {
	if c.cap != nil {
		c.cap.Close()
		c.cap = nil
	}
}
