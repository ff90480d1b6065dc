package conversation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const elevenLabsBaseURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// ElevenLabs implements Client for the ElevenLabs Agents Platform.
type ElevenLabs struct {
	config *Config
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	state     ConnectionState
	cancelCtx context.CancelFunc

	// writeMu serializes all WebSocket writes; gorilla/websocket allows
	// only one concurrent writer.
	writeMu sync.Mutex

	// Callbacks
	onAudio        func(audio []byte)
	onAudioDone    func()
	onTranscript   func(role, text string)
	onToolCall     func(call ToolCall)
	onInterruption func()
	onError        func(err error)
	onDisconnect   func(err error)

	// disconnectOnce guards the single OnDisconnect delivery per Connect.
	disconnectOnce *sync.Once
}

// NewElevenLabs creates a new ElevenLabs conversation client.
//
//	client, _ := NewElevenLabs(
//	    WithAPIKey(apiKey),
//	    WithAgentID(agentID),  // From ElevenLabs dashboard
//	)
func NewElevenLabs(opts ...Option) (*ElevenLabs, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = elevenLabsBaseURL
	}

	return &ElevenLabs{
		config: cfg,
		logger: cfg.Logger.With("component", "conversation.elevenlabs"),
		state:  StateDisconnected,
	}, nil
}

// Connect establishes the WebSocket connection to ElevenLabs.
func (e *ElevenLabs) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateDisconnected {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.state = StateConnecting
	e.mu.Unlock()

	wsURL, err := url.Parse(e.config.BaseURL)
	if err != nil {
		e.setState(StateDisconnected)
		return fmt.Errorf("conversation.elevenlabs: invalid URL: %w", err)
	}
	q := wsURL.Query()
	q.Set("agent_id", e.config.AgentID)
	wsURL.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: e.config.Timeout,
	}

	e.logger.Info("connecting to agent platform", "agent_id", e.config.AgentID)

	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), headers)
	if err != nil {
		e.setState(StateDisconnected)
		if resp != nil {
			return NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
		}
		return NewConnectionError("dial failed", err, true)
	}

	// The read loop outlives the Connect context.
	msgCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.conn = conn
	e.state = StateConnected
	e.cancelCtx = cancel
	e.disconnectOnce = &sync.Once{}
	e.mu.Unlock()

	go e.readLoop(msgCtx)

	e.logger.Info("connected to agent platform")
	return nil
}

// Close gracefully closes the connection. Safe to call repeatedly.
func (e *ElevenLabs) Close() error {
	e.mu.Lock()
	if e.state == StateDisconnected {
		e.mu.Unlock()
		return nil
	}

	if e.cancelCtx != nil {
		e.cancelCtx()
	}
	conn := e.conn
	e.conn = nil
	e.state = StateDisconnected
	once := e.disconnectOnce
	e.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		conn.Close()
	}

	// A deliberate close is a clean disconnect.
	e.emitDisconnect(once, nil)

	e.logger.Info("disconnected from agent platform")
	return nil
}

// IsConnected returns true if connected.
func (e *ElevenLabs) IsConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateConnected
}

// SendAudio streams one chunk of microphone audio to the agent.
func (e *ElevenLabs) SendAudio(audio []byte) error {
	msg := map[string]string{
		"user_audio_chunk": base64.StdEncoding.EncodeToString(audio),
	}
	return e.writeJSON(msg)
}

// SubmitToolResult returns a tool call result to the agent.
func (e *ElevenLabs) SubmitToolResult(callID, result string, isError bool) error {
	msg := map[string]any{
		"type":         "client_tool_result",
		"tool_call_id": callID,
		"result":       result,
		"is_error":     isError,
	}
	if err := e.writeJSON(msg); err != nil {
		return err
	}

	e.logger.Debug("submitted tool result",
		"call_id", callID,
		"is_error", isError,
		"result_len", len(result),
	)
	return nil
}

// OnAudio sets the agent audio callback.
func (e *ElevenLabs) OnAudio(fn func(audio []byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAudio = fn
}

// OnAudioDone sets the response-finished callback.
func (e *ElevenLabs) OnAudioDone(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAudioDone = fn
}

// OnTranscript sets the transcript callback.
func (e *ElevenLabs) OnTranscript(fn func(role, text string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTranscript = fn
}

// OnToolCall sets the tool call callback.
func (e *ElevenLabs) OnToolCall(fn func(call ToolCall)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onToolCall = fn
}

// OnInterruption sets the interruption callback.
func (e *ElevenLabs) OnInterruption(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onInterruption = fn
}

// OnError sets the error callback.
func (e *ElevenLabs) OnError(fn func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = fn
}

// OnDisconnect sets the disconnect callback.
func (e *ElevenLabs) OnDisconnect(fn func(err error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onDisconnect = fn
}

// writeJSON marshals and writes one message under the write lock.
func (e *ElevenLabs) writeJSON(msg any) error {
	e.mu.RLock()
	conn := e.conn
	state := e.state
	e.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("conversation.elevenlabs: marshal failed: %w", err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(e.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return NewConnectionError("write failed", err, true)
	}
	return nil
}

// readLoop processes incoming WebSocket messages until the connection ends.
func (e *ElevenLabs) readLoop(ctx context.Context) {
	e.mu.RLock()
	once := e.disconnectOnce
	e.mu.RUnlock()

	var terminal error

	defer func() {
		e.mu.Lock()
		if e.state == StateConnected {
			e.state = StateDisconnected
		}
		e.mu.Unlock()
		e.emitDisconnect(once, terminal)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.mu.RLock()
		conn := e.conn
		e.mu.RUnlock()
		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(e.config.ReadTimeout))

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				// Deliberate close; Close already reported it.
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.logger.Info("connection closed by agent platform")
				terminal = ErrConnectionClosed
				return
			}
			e.logger.Error("read error", "error", err)
			terminal = NewConnectionError("read failed", err, true)
			e.emitError(terminal)
			return
		}

		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			e.logger.Warn("failed to parse message", "error", err)
			continue
		}

		e.handleMessage(msg)
	}
}

// handleMessage processes a single message.
func (e *ElevenLabs) handleMessage(msg incomingMessage) {
	switch msg.Type {
	case "audio":
		// Handle both nested (audio_event) and flat formats.
		audioData := msg.Audio
		if msg.AudioEvent != nil && msg.AudioEvent.AudioBase64 != "" {
			audioData = msg.AudioEvent.AudioBase64
		}
		if audioData == "" {
			return
		}
		audio, err := base64.StdEncoding.DecodeString(audioData)
		if err != nil {
			e.logger.Warn("failed to decode audio", "error", err)
			return
		}
		e.emitAudio(audio)

	case "audio_done", "agent_response_done":
		e.emitAudioDone()

	case "user_transcript":
		text := msg.Text
		if msg.UserTranscription != nil {
			text = msg.UserTranscription.Transcript
		}
		e.emitTranscript("user", text)

	case "agent_response":
		text := msg.Text
		if msg.AgentResponse != nil {
			text = msg.AgentResponse.Response
		}
		e.emitTranscript("agent", text)

	case "tool_call", "client_tool_call":
		call := ToolCall{
			ID:         msg.ToolCallID,
			Name:       msg.ToolName,
			Parameters: msg.Parameters,
		}
		if msg.ClientToolCall != nil {
			call.ID = msg.ClientToolCall.ToolCallID
			call.Name = msg.ClientToolCall.ToolName
			call.Parameters = msg.ClientToolCall.Parameters
		}
		e.logger.Info("tool call received", "call_id", call.ID, "tool", call.Name)
		e.emitToolCall(call)

	case "interruption":
		e.emitInterruption()

	case "error":
		e.emitError(NewAPIError(0, msg.Code, msg.Message))

	case "ping":
		eventID := 0
		if msg.PingEvent != nil {
			eventID = msg.PingEvent.EventID
		}
		e.sendPong(eventID)

	default:
		e.logger.Debug("unhandled message type", "type", msg.Type)
	}
}

// sendPong responds to a ping message with the event_id.
func (e *ElevenLabs) sendPong(eventID int) {
	msg := map[string]any{
		"type":     "pong",
		"event_id": eventID,
	}
	if err := e.writeJSON(msg); err != nil {
		e.logger.Warn("pong failed", "error", err)
	}
}

func (e *ElevenLabs) setState(s ConnectionState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Emit helpers

func (e *ElevenLabs) emitAudio(audio []byte) {
	e.mu.RLock()
	fn := e.onAudio
	e.mu.RUnlock()
	if fn != nil {
		fn(audio)
	}
}

func (e *ElevenLabs) emitAudioDone() {
	e.mu.RLock()
	fn := e.onAudioDone
	e.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (e *ElevenLabs) emitTranscript(role, text string) {
	e.mu.RLock()
	fn := e.onTranscript
	e.mu.RUnlock()
	if fn != nil {
		fn(role, text)
	}
}

func (e *ElevenLabs) emitToolCall(call ToolCall) {
	e.mu.RLock()
	fn := e.onToolCall
	e.mu.RUnlock()
	if fn != nil {
		fn(call)
	}
}

func (e *ElevenLabs) emitInterruption() {
	e.mu.RLock()
	fn := e.onInterruption
	e.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (e *ElevenLabs) emitError(err error) {
	e.mu.RLock()
	fn := e.onError
	e.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (e *ElevenLabs) emitDisconnect(once *sync.Once, err error) {
	if once == nil {
		return
	}
	e.mu.RLock()
	fn := e.onDisconnect
	e.mu.RUnlock()
	if fn == nil {
		return
	}
	once.Do(func() { fn(err) })
}

// Message types for the ElevenLabs WebSocket API.

type incomingMessage struct {
	Type       string         `json:"type"`
	Audio      string         `json:"audio,omitempty"`
	Text       string         `json:"text,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolName   string         `json:"tool_name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`

	// Nested event structures (ElevenLabs format)
	AudioEvent        *audioEvent        `json:"audio_event,omitempty"`
	PingEvent         *pingEvent         `json:"ping_event,omitempty"`
	ClientToolCall    *clientToolCall    `json:"client_tool_call,omitempty"`
	UserTranscription *userTranscription `json:"user_transcription_event,omitempty"`
	AgentResponse     *agentResponse     `json:"agent_response_event,omitempty"`
}

type audioEvent struct {
	EventID     int    `json:"event_id"`
	AudioBase64 string `json:"audio_base_64"`
}

type pingEvent struct {
	EventID int `json:"event_id"`
	PingMs  int `json:"ping_ms,omitempty"`
}

type clientToolCall struct {
	ToolName   string         `json:"tool_name"`
	ToolCallID string         `json:"tool_call_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type userTranscription struct {
	Transcript string `json:"user_transcript"`
}

type agentResponse struct {
	Response string `json:"agent_response"`
}

// Ensure ElevenLabs implements Client.
var _ Client = (*ElevenLabs)(nil)
