package camera

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// The Pi camera stack (picamera2) lives in the system Python installation and
// cannot be linked into this process. Each capture therefore runs a short
// child process: the script prints the JPEG as base64 on stdout, or an
// "ERROR: ..." line on stderr with a nonzero exit. The child is killed when
// the capture deadline passes, so a wedged camera stack can never hang a
// tool call.
const captureScript = `
import base64, io, sys, time
try:
    from picamera2 import Picamera2
    cam = Picamera2()
    cam.configure(cam.create_still_configuration(main={"size": (%d, %d)}))
    cam.start()
    time.sleep(0.5)
    buf = io.BytesIO()
    cam.capture_file(buf, format="jpeg")
    cam.stop()
    cam.close()
    sys.stdout.write(base64.b64encode(buf.getvalue()).decode("ascii"))
except Exception as exc:
    sys.stderr.write("ERROR: %%s" %% exc)
    sys.exit(1)
`

const probeScript = `
import sys
try:
    from picamera2 import Picamera2
    if not Picamera2.global_camera_info():
        sys.stderr.write("ERROR: no camera detected")
        sys.exit(1)
except Exception as exc:
    sys.stderr.write("ERROR: %s" % exc)
    sys.exit(1)
`

// PiCamera captures stills from the Pi camera module via a subprocess bridge.
type PiCamera struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
	// probe result is cached after the first check.
	probed    bool
	available bool
}

// NewPiCamera creates a Pi camera backend using cfg.Python as the bridge
// interpreter.
func NewPiCamera(cfg Config, logger *slog.Logger) *PiCamera {
	if logger == nil {
		logger = slog.Default()
	}
	return &PiCamera{
		cfg:    cfg,
		logger: logger.With("component", "camera", "backend", TypePi),
	}
}

// Capture runs one bridge child and decodes its output.
func (c *PiCamera) Capture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	script := fmt.Sprintf(captureScript, c.cfg.Width, c.cfg.Height)

	start := time.Now()
	stdout, err := c.run(ctx, script, c.cfg.CaptureTimeout)
	if err != nil {
		return nil, err
	}

	payload := strings.TrimSpace(stdout)
	if payload == "" {
		return nil, &BridgeError{Stderr: "no image data on stdout"}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("camera: decode bridge output: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	c.logger.Debug("captured still",
		"bytes", len(data),
		"duration", time.Since(start),
	)
	return data, nil
}

// Available probes the camera stack once and caches the answer.
func (c *PiCamera) Available(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.probed {
		return c.available
	}

	_, err := c.run(ctx, probeScript, c.cfg.ProbeTimeout)
	c.probed = true
	c.available = err == nil
	if err != nil {
		c.logger.Warn("pi camera probe failed", "error", err)
	}
	return c.available
}

// Close is a no-op; the bridge holds no persistent device handle.
func (c *PiCamera) Close() error {
	return nil
}

// run executes one bridge child under a deadline.
func (c *PiCamera) run(ctx context.Context, script string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.Python, "-c", script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%w after %s", ErrCaptureTimeout, timeout)
		}
		if cmd.ProcessState == nil {
			// The interpreter never started.
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		msg := strings.TrimSpace(stderr.String())
		msg = strings.TrimPrefix(msg, "ERROR: ")
		return "", &BridgeError{
			ExitCode: cmd.ProcessState.ExitCode(),
			Stderr:   msg,
		}
	}

	return stdout.String(), nil
}
