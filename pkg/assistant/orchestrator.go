package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pocketsight/pocketsight/pkg/audioio"
	"github.com/pocketsight/pocketsight/pkg/camera"
	"github.com/pocketsight/pocketsight/pkg/conversation"
	"github.com/pocketsight/pocketsight/pkg/vision"
	"github.com/pocketsight/pocketsight/pkg/wakeword"
)

// Spoken tool results for failure paths. The agent reads these back, so they
// are phrased for the user, not for a log file.
const (
	msgCameraFailure   = "Sorry, I couldn't capture an image from the camera. Please check the camera connection."
	msgAnalysisFailure = "Sorry, I had trouble analyzing the image. Please try again."
	msgUnknownTool     = "Sorry, that's not a tool I can run on this device."
	msgBusy            = "Sorry, I'm still working on the previous request. Please try again in a moment."
)

// WakeListener is the wake-phrase side of the microphone hand-off.
// *wakeword.Listener satisfies it.
type WakeListener interface {
	Arm(ctx context.Context) error
	Disarm() error
	Armed() bool
	Activations() <-chan wakeword.Activation
}

// ClientFactory creates a fresh conversation client for each session.
type ClientFactory func() (conversation.Client, error)

// Event types published through OnEvent.
const (
	EventState      = "state"
	EventActivation = "activation"
	EventTranscript = "transcript"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
)

// Event is a dashboard-facing notification about orchestrator activity.
type Event struct {
	Type    string    `json:"type"`
	State   string    `json:"state,omitempty"`
	Session string    `json:"session,omitempty"`
	Tool    string    `json:"tool,omitempty"`
	Role    string    `json:"role,omitempty"`
	Text    string    `json:"text,omitempty"`
	IsError bool      `json:"is_error,omitempty"`
	At      time.Time `json:"at"`
}

// Config holds orchestrator timing settings.
type Config struct {
	// ToolTimeout bounds one tool call end to end: capture plus analysis.
	// It sits above the camera's own capture timeout so the camera gets
	// the first chance to fail with a specific reason.
	ToolTimeout time.Duration

	// ConnectTimeout bounds session establishment after a wake phrase.
	ConnectTimeout time.Duration
}

// DefaultConfig returns the standard orchestrator timings.
func DefaultConfig() Config {
	return Config{
		ToolTimeout:    35 * time.Second,
		ConnectTimeout: 15 * time.Second,
	}
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Listener  WakeListener
	Mic       audioio.Source
	Speaker   audioio.Sink
	Camera    camera.Camera
	Analyzer  vision.Analyzer
	NewClient ClientFactory

	// Tools defaults to DefaultTools when nil.
	Tools *Registry

	Config Config
	Logger *slog.Logger
}

// Session is one live conversation with the agent.
type Session struct {
	ID        uuid.UUID
	StartedAt time.Time

	client   conversation.Client
	cancel   context.CancelFunc
	playCh   chan []byte
	pumpDone chan struct{}
	playDone chan struct{}
}

type toolJob struct {
	session uuid.UUID
	client  conversation.Client
	call    conversation.ToolCall
}

// sessionEndEvent asks the run loop to tear down one specific session.
// Carrying the ID lets the loop ignore stragglers: closing a client during
// teardown fires its disconnect callback, and that stale event must not
// touch whatever session is current by the time it is drained.
type sessionEndEvent struct {
	session uuid.UUID
	err     error
}

// Orchestrator owns the microphone and drives the idle/active lifecycle.
//
// At any moment the microphone has exactly one holder: the wake-phrase
// listener while idle, the session's audio pump while active. Ownership
// moves only through transferMic, which fully revokes the current holder
// before granting the next.
type Orchestrator struct {
	cfg       Config
	listener  WakeListener
	mic       audioio.Source
	speaker   audioio.Sink
	cam       camera.Camera
	analyzer  vision.Analyzer
	newClient ClientFactory
	tools     *Registry
	logger    *slog.Logger

	mu        sync.Mutex
	state     State
	micHolder string
	session   *Session
	onEvent   func(Event)

	// toolCalls serializes tool execution: one worker, one call at a time.
	toolCalls  chan toolJob
	sessionEnd chan sessionEndEvent
}

// New creates an orchestrator. All collaborators except Tools and Logger
// are required.
func New(opts Options) (*Orchestrator, error) {
	if opts.Listener == nil {
		return nil, fmt.Errorf("assistant: wake listener is required")
	}
	if opts.Mic == nil || opts.Speaker == nil {
		return nil, fmt.Errorf("assistant: microphone and speaker are required")
	}
	if opts.Camera == nil {
		return nil, fmt.Errorf("assistant: camera is required")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("assistant: analyzer is required")
	}
	if opts.NewClient == nil {
		return nil, fmt.Errorf("assistant: client factory is required")
	}
	if opts.Tools == nil {
		opts.Tools = DefaultTools()
	}
	if opts.Config.ToolTimeout <= 0 {
		opts.Config.ToolTimeout = DefaultConfig().ToolTimeout
	}
	if opts.Config.ConnectTimeout <= 0 {
		opts.Config.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Orchestrator{
		cfg:        opts.Config,
		listener:   opts.Listener,
		mic:        opts.Mic,
		speaker:    opts.Speaker,
		cam:        opts.Camera,
		analyzer:   opts.Analyzer,
		newClient:  opts.NewClient,
		tools:      opts.Tools,
		logger:     opts.Logger.With("component", "assistant"),
		state:      StateIdle,
		toolCalls:  make(chan toolJob, 8),
		sessionEnd: make(chan sessionEndEvent, 4),
	}, nil
}

// OnEvent sets the event callback. Set before Run.
func (o *Orchestrator) OnEvent(fn func(Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEvent = fn
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// MicHolder returns the current microphone owner label.
func (o *Orchestrator) MicHolder() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.micHolder
}

// EndSession requests teardown of the active session, if any.
// This is the operator-stop path; it never blocks.
func (o *Orchestrator) EndSession() {
	o.mu.Lock()
	sess := o.session
	o.mu.Unlock()
	if sess == nil {
		return
	}
	o.endSession(sess.ID, nil)
}

// Run arms the wake listener and drives the lifecycle until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.transferMic(ctx, micOwnerWakeword, nil, o.listener.Arm); err != nil {
		return fmt.Errorf("assistant: arm wake listener: %w", err)
	}

	go o.toolWorker(ctx)

	o.logger.Info("assistant running", "tools", o.tools.Names())

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()

		case act := <-o.listener.Activations():
			if o.State() != StateIdle {
				o.logger.Debug("activation dropped", "state", o.State().String())
				continue
			}
			o.emit(Event{Type: EventActivation, Text: act.Hotword, At: time.Now()})
			o.startSession(ctx, act)

		case end := <-o.sessionEnd:
			o.teardown(ctx, end)
		}
	}
}

// startSession establishes a session for a wake activation. On any failure
// the listener is re-armed and the orchestrator returns to idle.
func (o *Orchestrator) startSession(ctx context.Context, act wakeword.Activation) {
	o.setState(StateActivating)

	client, err := o.newClient()
	if err != nil {
		o.logger.Error("session client creation failed", "error", err)
		o.rearm(ctx)
		return
	}

	sess := &Session{
		ID:        uuid.New(),
		StartedAt: time.Now(),
		client:    client,
		playCh:    make(chan []byte, 32),
		pumpDone:  make(chan struct{}),
		playDone:  make(chan struct{}),
	}

	client.OnAudio(func(audio []byte) {
		select {
		case sess.playCh <- audio:
		default:
			o.logger.Warn("playback buffer full, dropping chunk")
		}
	})
	client.OnInterruption(func() {
		// Barge-in: flush whatever the agent was saying.
		_ = o.speaker.Clear()
	})
	client.OnTranscript(func(role, text string) {
		o.emit(Event{Type: EventTranscript, Session: sess.ID.String(), Role: role, Text: text, At: time.Now()})
	})
	client.OnToolCall(func(call conversation.ToolCall) {
		o.emit(Event{Type: EventToolCall, Session: sess.ID.String(), Tool: call.Name, At: time.Now()})
		select {
		case o.toolCalls <- toolJob{session: sess.ID, client: client, call: call}:
		default:
			// The queue is saturated; the call still gets an answer.
			_ = client.SubmitToolResult(call.ID, msgBusy, true)
		}
	})
	client.OnError(func(err error) {
		o.logger.Warn("session error", "session_id", sess.ID, "error", err)
	})
	client.OnDisconnect(func(err error) {
		o.endSession(sess.ID, err)
	})

	connectCtx, cancel := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	err = client.Connect(connectCtx)
	cancel()
	if err != nil {
		o.logger.Error("session connect failed", "error", err)
		o.rearm(ctx)
		return
	}

	sessCtx, sessCancel := context.WithCancel(ctx)
	sess.cancel = sessCancel

	// The listener released the device when it matched; Disarm here is an
	// idempotent revoke so the invariant holds on every path.
	if err := o.transferMic(ctx, micOwnerSession, o.listener.Disarm, o.mic.Start); err != nil {
		o.logger.Error("microphone unavailable for session", "error", err)
		_ = client.Close()
		sessCancel()
		o.rearm(ctx)
		return
	}

	if err := o.speaker.Start(sessCtx); err != nil {
		o.logger.Error("speaker unavailable for session", "error", err)
		_ = client.Close()
		sessCancel()
		_ = o.mic.Stop()
		o.rearm(ctx)
		return
	}

	go o.pump(sessCtx, sess)
	go o.play(sessCtx, sess)

	o.mu.Lock()
	o.session = sess
	o.mu.Unlock()
	o.setState(StateActive)

	o.logger.Info("session started",
		"session_id", sess.ID,
		"hotword", act.Hotword,
		"confidence", act.Confidence,
	)
}

// teardown dismantles the active session and re-arms the wake listener.
func (o *Orchestrator) teardown(ctx context.Context, end sessionEndEvent) {
	o.mu.Lock()
	sess := o.session
	if sess == nil || sess.ID != end.session {
		// Stale end event for a session already gone; nothing to do.
		o.mu.Unlock()
		return
	}
	o.session = nil
	o.mu.Unlock()

	o.setState(StateTeardown)
	if end.err != nil {
		o.logger.Warn("session ended", "session_id", sess.ID, "error", end.err)
	} else {
		o.logger.Info("session ended", "session_id", sess.ID, "duration", time.Since(sess.StartedAt))
	}

	sess.cancel()
	_ = sess.client.Close()
	<-sess.pumpDone
	<-sess.playDone
	_ = o.speaker.Stop()

	if err := o.transferMic(ctx, micOwnerWakeword, o.mic.Stop, o.listener.Arm); err != nil {
		o.logger.Error("failed to re-arm wake listener", "error", err)
	}
	o.setState(StateIdle)
}

// rearm returns the microphone to the wake listener after a failed start.
func (o *Orchestrator) rearm(ctx context.Context) {
	if err := o.transferMic(ctx, micOwnerWakeword, nil, o.listener.Arm); err != nil {
		o.logger.Error("failed to re-arm wake listener", "error", err)
	}
	o.setState(StateIdle)
}

// shutdown releases everything when Run's context ends.
func (o *Orchestrator) shutdown() {
	o.mu.Lock()
	sess := o.session
	o.session = nil
	o.mu.Unlock()

	if sess != nil {
		sess.cancel()
		_ = sess.client.Close()
		<-sess.pumpDone
		<-sess.playDone
		_ = o.speaker.Stop()
		_ = o.mic.Stop()
	}
	_ = o.listener.Disarm()

	o.mu.Lock()
	o.micHolder = micOwnerNone
	o.mu.Unlock()

	o.logger.Info("assistant stopped")
}

// transferMic moves microphone ownership: revoke the current holder fully,
// then grant to the next. The device is never held by two owners at once.
func (o *Orchestrator) transferMic(ctx context.Context, to string, revoke func() error, grant func(context.Context) error) error {
	o.mu.Lock()
	from := o.micHolder
	o.micHolder = micOwnerNone
	o.mu.Unlock()

	if revoke != nil {
		if err := revoke(); err != nil {
			o.logger.Warn("microphone revoke failed", "from", from, "error", err)
		}
	}
	if grant != nil {
		if err := grant(ctx); err != nil {
			return err
		}
	}

	o.mu.Lock()
	o.micHolder = to
	o.mu.Unlock()

	o.logger.Debug("microphone transferred", "from", from, "to", to)
	return nil
}

// pump streams microphone audio to the agent until the session ends.
func (o *Orchestrator) pump(ctx context.Context, sess *Session) {
	defer close(sess.pumpDone)

	for {
		chunk, err := o.mic.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				o.logger.Error("microphone read failed", "error", err)
				o.endSession(sess.ID, err)
			}
			return
		}

		if err := sess.client.SendAudio(chunk.Bytes()); err != nil {
			if conversation.IsNotConnected(err) {
				return
			}
			o.logger.Warn("send audio failed", "error", err)
		}
	}
}

// play writes agent speech to the speaker until the session ends.
func (o *Orchestrator) play(ctx context.Context, sess *Session) {
	defer close(sess.playDone)

	outCfg := o.speaker.Config()
	for {
		select {
		case <-ctx.Done():
			return
		case audio := <-sess.playCh:
			var chunk audioio.AudioChunk
			chunk.FromBytes(audio, outCfg.SampleRate, outCfg.Channels)
			if err := o.speaker.Write(ctx, chunk); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.ErrClosedPipe) {
					return
				}
				o.logger.Warn("playback failed", "error", err)
			}
		}
	}
}

// toolWorker executes tool calls one at a time, in arrival order.
func (o *Orchestrator) toolWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-o.toolCalls:
			o.executeTool(ctx, job)
		}
	}
}

// executeTool runs one tool call and always submits a result, error or not.
func (o *Orchestrator) executeTool(ctx context.Context, job toolJob) {
	log := o.logger.With(
		"session_id", job.session,
		"call_id", job.call.ID,
		"tool", job.call.Name,
	)

	start := time.Now()
	result, isErr := o.runTool(ctx, job.call, log)

	if err := job.client.SubmitToolResult(job.call.ID, result, isErr); err != nil {
		log.Warn("tool result not delivered", "error", err)
		return
	}

	log.Info("tool call answered", "is_error", isErr, "duration", time.Since(start))
	o.emit(Event{
		Type:    EventToolResult,
		Session: job.session.String(),
		Tool:    job.call.Name,
		Text:    result,
		IsError: isErr,
		At:      time.Now(),
	})
}

// runTool produces the spoken result for one tool call. A camera or
// analysis failure is a tool-level error; the session itself stays up.
func (o *Orchestrator) runTool(ctx context.Context, call conversation.ToolCall, log *slog.Logger) (string, bool) {
	tool, ok := o.tools.Lookup(call.Name)
	if !ok {
		// Unknown tools never touch the camera.
		log.Warn("unknown tool requested")
		return msgUnknownTool, true
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.ToolTimeout)
	defer cancel()

	img, err := o.cam.Capture(ctx)
	if err != nil {
		log.Error("capture failed", "error", err)
		return msgCameraFailure, true
	}

	text, err := o.analyzer.Analyze(ctx, tool.Intent, img)
	if err != nil {
		log.Error("analysis failed", "error", err)
		return msgAnalysisFailure, true
	}

	return text, false
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.emit(Event{Type: EventState, State: s.String(), At: time.Now()})
}

func (o *Orchestrator) endSession(id uuid.UUID, err error) {
	select {
	case o.sessionEnd <- sessionEndEvent{session: id, err: err}:
	default:
	}
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	fn := o.onEvent
	o.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}
