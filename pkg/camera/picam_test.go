package camera

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeBridge writes an executable that stands in for the Python interpreter,
// so the subprocess protocol can be tested without a camera stack.
func fakeBridge(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "python3")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func piConfig(interpreter string) Config {
	cfg := DefaultConfig()
	cfg.Type = TypePi
	cfg.Python = interpreter
	cfg.CaptureTimeout = 500 * time.Millisecond
	cfg.ProbeTimeout = 500 * time.Millisecond
	return cfg
}

func TestPiCameraCapture(t *testing.T) {
	t.Run("decodes base64 stdout", func(t *testing.T) {
		want := []byte("fake-jpeg-bytes")
		encoded := base64.StdEncoding.EncodeToString(want)
		bridge := fakeBridge(t, fmt.Sprintf("printf '%%s' '%s'", encoded))

		cam := NewPiCamera(piConfig(bridge), nil)
		got, err := cam.Capture(context.Background())
		if err != nil {
			t.Fatalf("capture failed: %v", err)
		}
		if string(got) != string(want) {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("child error surfaces stderr", func(t *testing.T) {
		bridge := fakeBridge(t, `echo "ERROR: Camera not detected" >&2; exit 3`)

		cam := NewPiCamera(piConfig(bridge), nil)
		_, err := cam.Capture(context.Background())

		var bridgeErr *BridgeError
		if !errors.As(err, &bridgeErr) {
			t.Fatalf("expected BridgeError, got %v", err)
		}
		if bridgeErr.ExitCode != 3 {
			t.Errorf("expected exit code 3, got %d", bridgeErr.ExitCode)
		}
		if bridgeErr.Stderr != "Camera not detected" {
			t.Errorf("unexpected stderr: %q", bridgeErr.Stderr)
		}
	})

	t.Run("hung child is killed at the deadline", func(t *testing.T) {
		bridge := fakeBridge(t, "sleep 60")

		cam := NewPiCamera(piConfig(bridge), nil)

		start := time.Now()
		_, err := cam.Capture(context.Background())
		elapsed := time.Since(start)

		if !errors.Is(err, ErrCaptureTimeout) {
			t.Fatalf("expected ErrCaptureTimeout, got %v", err)
		}
		if elapsed > 5*time.Second {
			t.Errorf("capture took %s, deadline not enforced", elapsed)
		}
	})

	t.Run("empty stdout is a bridge error", func(t *testing.T) {
		bridge := fakeBridge(t, "exit 0")

		cam := NewPiCamera(piConfig(bridge), nil)
		_, err := cam.Capture(context.Background())

		var bridgeErr *BridgeError
		if !errors.As(err, &bridgeErr) {
			t.Fatalf("expected BridgeError, got %v", err)
		}
	})
}

func TestPiCameraAvailable(t *testing.T) {
	t.Run("probe success is cached", func(t *testing.T) {
		// The probe counts its invocations through a side file.
		dir := t.TempDir()
		marker := filepath.Join(dir, "count")
		bridge := fakeBridge(t, fmt.Sprintf(`echo run >> %s; exit 0`, marker))

		cam := NewPiCamera(piConfig(bridge), nil)
		if !cam.Available(context.Background()) {
			t.Fatal("expected available")
		}
		if !cam.Available(context.Background()) {
			t.Fatal("expected cached available")
		}

		data, err := os.ReadFile(marker)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "run\n" {
			t.Errorf("probe ran more than once: %q", data)
		}
	})

	t.Run("probe failure reports unavailable", func(t *testing.T) {
		bridge := fakeBridge(t, `echo "ERROR: no camera detected" >&2; exit 1`)

		cam := NewPiCamera(piConfig(bridge), nil)
		if cam.Available(context.Background()) {
			t.Error("expected unavailable")
		}
	})
}
