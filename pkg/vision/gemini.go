package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
	defaultTimeout = 30 * time.Second
)

// Errors returned by the analyzer.
var (
	// ErrNoAPIKey indicates the client was built without an API key.
	ErrNoAPIKey = errors.New("vision: GOOGLE_API_KEY not set")

	// ErrNoImage indicates Analyze was called with no image bytes.
	ErrNoImage = errors.New("vision: no image data")

	// ErrEmptyResponse indicates the model returned no usable text.
	ErrEmptyResponse = errors.New("vision: empty model response")
)

// APIError reports a non-200 response from the Gemini API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vision: gemini api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vision: gemini api error (status %d)", e.StatusCode)
}

// Analyzer produces a spoken-style description of a JPEG still.
type Analyzer interface {
	Analyze(ctx context.Context, intent Intent, jpeg []byte) (string, error)
}

// Gemini analyzes images through the Gemini generateContent REST endpoint.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Gemini analyzer.
type Option func(*Gemini)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(g *Gemini) { g.model = model }
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(g *Gemini) { g.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gemini) { g.client = client }
}

// NewGemini creates a Gemini analyzer.
func NewGemini(apiKey string, logger *slog.Logger, opts ...Option) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gemini{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("component", "vision"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Wire format for generateContent.

type generateRequest struct {
	Contents         []content       `json:"contents"`
	GenerationConfig *generateConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the image and the intent's prompt to the model and returns
// the spoken-style description. It fails before any network call when the
// image is empty.
func (g *Gemini) Analyze(ctx context.Context, intent Intent, jpeg []byte) (string, error) {
	if len(jpeg) == 0 {
		return "", ErrNoImage
	}

	prompt, err := intent.Prompt()
	if err != nil {
		return "", err
	}

	reqBody := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(jpeg),
				}},
			},
		}},
		GenerationConfig: &generateConfig{
			Temperature:     0.7,
			MaxOutputTokens: 1000,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("vision: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("vision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision: api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("vision: read response: %w", err)
	}

	var result generateResponse
	if resp.StatusCode != http.StatusOK {
		// The error body is best effort.
		_ = json.Unmarshal(body, &result)
		return "", &APIError{StatusCode: resp.StatusCode, Message: result.Error.Message}
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("vision: decode response: %w (body: %s)", err, truncate(string(body), 200))
	}
	if result.Error.Message != "" {
		return "", &APIError{StatusCode: resp.StatusCode, Message: result.Error.Message}
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w (raw: %s)", ErrEmptyResponse, truncate(string(body), 300))
	}

	text := result.Candidates[0].Content.Parts[0].Text
	g.logger.Debug("analysis complete",
		"intent", string(intent),
		"image_bytes", len(jpeg),
		"response_chars", len(text),
		"duration", time.Since(start),
	)
	return text, nil
}

// truncate shortens a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
