// Package config provides environment-driven configuration for pocketsight.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultCameraType        = "usb"
	DefaultWakeWordRef       = "hotword_refs/hey_pi_ref.json"
	DefaultWakeWordThreshold = 0.7
	DefaultPiCameraPython    = "/usr/bin/python3"
)

// Config holds all configuration for the pocketsight application.
// Flag parsing is done in cmd/pocketsight/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// LogLevel is the slog level: "debug", "info", "warn", "error".
	LogLevel string

	// API credentials (from environment variables).
	ElevenLabsKey     string
	ElevenLabsAgentID string
	GoogleAPIKey      string

	// Camera selection.
	CameraType     string // "usb" or "pi"
	USBCameraIndex int
	PiCameraPython string // interpreter for the picamera2 capture child

	// Wake word detection.
	WakeWordRef       string
	WakeWordThreshold float64

	// Audio device selection.
	AudioBackend string // "portaudio", "mock", "" = auto
	AudioDevice  string

	// DashboardPort enables the operator web dashboard when non-empty.
	DashboardPort string
}

// Default returns sensible defaults for pocketsight configuration.
func Default() Config {
	return Config{
		LogLevel:          "info",
		CameraType:        DefaultCameraType,
		WakeWordRef:       DefaultWakeWordRef,
		WakeWordThreshold: DefaultWakeWordThreshold,
		PiCameraPython:    DefaultPiCameraPython,
	}
}

// Load reads configuration from an optional .env file and the environment.
// A missing .env file is not an error; explicit envFile paths that fail to
// parse are.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	} else {
		// Best-effort default .env in the working directory.
		_ = godotenv.Load()
	}

	c := Default()
	c.LoadEnv()
	return c, nil
}

// LoadEnv applies environment variable overrides to the config.
func (c *Config) LoadEnv() {
	c.ElevenLabsKey = os.Getenv("ELEVENLABS_API_KEY")
	c.ElevenLabsAgentID = os.Getenv("ELEVENLABS_AGENT_ID")
	c.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")

	if v := os.Getenv("CAMERA_TYPE"); v != "" {
		c.CameraType = v
	}
	if v := os.Getenv("USB_CAMERA_INDEX"); v != "" {
		if idx, err := strconv.Atoi(v); err == nil {
			c.USBCameraIndex = idx
		}
	}
	if v := os.Getenv("PI_CAMERA_PYTHON"); v != "" {
		c.PiCameraPython = v
	}
	if v := os.Getenv("WAKE_WORD_REF"); v != "" {
		c.WakeWordRef = v
	}
	if v := os.Getenv("WAKE_WORD_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.WakeWordThreshold = t
		}
	}
	if v := os.Getenv("AUDIO_BACKEND"); v != "" {
		c.AudioBackend = v
	}
	if v := os.Getenv("AUDIO_DEVICE"); v != "" {
		c.AudioDevice = v
	}
	if v := os.Getenv("DASHBOARD_PORT"); v != "" {
		c.DashboardPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that required configuration is present.
// Errors here are startup-fatal; the process must not degrade silently.
func (c *Config) Validate() error {
	if c.ElevenLabsKey == "" {
		return &ConfigError{Field: "ElevenLabsKey", Message: "ELEVENLABS_API_KEY environment variable is required"}
	}
	if c.ElevenLabsAgentID == "" {
		return &ConfigError{Field: "ElevenLabsAgentID", Message: "ELEVENLABS_AGENT_ID environment variable is required"}
	}
	if c.GoogleAPIKey == "" {
		return &ConfigError{Field: "GoogleAPIKey", Message: "GOOGLE_API_KEY environment variable is required"}
	}
	if c.CameraType != "usb" && c.CameraType != "pi" {
		return &ConfigError{Field: "CameraType", Message: fmt.Sprintf("CAMERA_TYPE must be \"usb\" or \"pi\", got %q", c.CameraType)}
	}
	if c.WakeWordThreshold <= 0 || c.WakeWordThreshold > 1 {
		return &ConfigError{Field: "WakeWordThreshold", Message: "WAKE_WORD_THRESHOLD must be in (0, 1]"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
