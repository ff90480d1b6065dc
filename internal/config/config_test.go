package config

import (
	"errors"
	"testing"
)

func validConfig() Config {
	c := Default()
	c.ElevenLabsKey = "xi-key"
	c.ElevenLabsAgentID = "agent-1"
	c.GoogleAPIKey = "g-key"
	return c
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		c := validConfig()
		if err := c.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("missing credentials are fatal", func(t *testing.T) {
		cases := []struct {
			name  string
			strip func(*Config)
			field string
		}{
			{"elevenlabs key", func(c *Config) { c.ElevenLabsKey = "" }, "ElevenLabsKey"},
			{"agent id", func(c *Config) { c.ElevenLabsAgentID = "" }, "ElevenLabsAgentID"},
			{"google key", func(c *Config) { c.GoogleAPIKey = "" }, "GoogleAPIKey"},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				c := validConfig()
				tc.strip(&c)

				err := c.Validate()
				if err == nil {
					t.Fatal("expected validation error")
				}

				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected *ConfigError, got %T", err)
				}
				if cfgErr.Field != tc.field {
					t.Errorf("expected field %s, got %s", tc.field, cfgErr.Field)
				}
			})
		}
	})

	t.Run("unknown camera type rejected", func(t *testing.T) {
		c := validConfig()
		c.CameraType = "firewire"
		if err := c.Validate(); err == nil {
			t.Error("expected error for unknown camera type")
		}
	})

	t.Run("threshold bounds", func(t *testing.T) {
		c := validConfig()
		c.WakeWordThreshold = 0
		if err := c.Validate(); err == nil {
			t.Error("expected error for zero threshold")
		}

		c.WakeWordThreshold = 1.5
		if err := c.Validate(); err == nil {
			t.Error("expected error for threshold above 1")
		}
	})
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "k1")
	t.Setenv("ELEVENLABS_AGENT_ID", "a1")
	t.Setenv("GOOGLE_API_KEY", "g1")
	t.Setenv("CAMERA_TYPE", "pi")
	t.Setenv("USB_CAMERA_INDEX", "2")
	t.Setenv("WAKE_WORD_THRESHOLD", "0.85")
	t.Setenv("DASHBOARD_PORT", "8080")

	c := Default()
	c.LoadEnv()

	if c.ElevenLabsKey != "k1" || c.ElevenLabsAgentID != "a1" || c.GoogleAPIKey != "g1" {
		t.Error("credentials not loaded from environment")
	}
	if c.CameraType != "pi" {
		t.Errorf("expected camera type pi, got %s", c.CameraType)
	}
	if c.USBCameraIndex != 2 {
		t.Errorf("expected camera index 2, got %d", c.USBCameraIndex)
	}
	if c.WakeWordThreshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %v", c.WakeWordThreshold)
	}
	if c.DashboardPort != "8080" {
		t.Errorf("expected dashboard port 8080, got %s", c.DashboardPort)
	}
}

func TestLoadEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("USB_CAMERA_INDEX", "not-a-number")
	t.Setenv("WAKE_WORD_THRESHOLD", "loud")

	c := Default()
	c.LoadEnv()

	if c.USBCameraIndex != 0 {
		t.Errorf("expected default camera index, got %d", c.USBCameraIndex)
	}
	if c.WakeWordThreshold != DefaultWakeWordThreshold {
		t.Errorf("expected default threshold, got %v", c.WakeWordThreshold)
	}
}
