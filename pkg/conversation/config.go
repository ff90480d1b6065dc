package conversation

import (
	"log/slog"
	"time"
)

// Config holds configuration for the conversation client.
type Config struct {
	// APIKey is the authentication key for the agent platform.
	APIKey string

	// AgentID identifies the dashboard-configured agent to converse with.
	AgentID string

	// BaseURL overrides the default WebSocket endpoint, mainly for tests.
	BaseURL string

	// InputSampleRate is the audio input sample rate in Hz.
	InputSampleRate int

	// OutputSampleRate is the audio output sample rate in Hz.
	OutputSampleRate int

	// Timeout is the connection handshake timeout.
	Timeout time.Duration

	// ReadTimeout is the timeout for reading messages. The platform pings
	// regularly, so an idle connection past this is considered dead.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		InputSampleRate:  16000,
		OutputSampleRate: 16000,
		Timeout:          30 * time.Second,
		ReadTimeout:      5 * time.Minute,
		WriteTimeout:     30 * time.Second,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.AgentID == "" {
		return ErrMissingAgentID
	}
	return nil
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithAgentID sets the agent ID.
func WithAgentID(id string) Option {
	return func(c *Config) {
		c.AgentID = id
	}
}

// WithBaseURL sets the WebSocket endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the connection handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithReadTimeout sets the message read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithInputSampleRate sets the audio input sample rate.
func WithInputSampleRate(rate int) Option {
	return func(c *Config) {
		c.InputSampleRate = rate
	}
}

// WithOutputSampleRate sets the audio output sample rate.
func WithOutputSampleRate(rate int) Option {
	return func(c *Config) {
		c.OutputSampleRate = rate
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
