package assistant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pocketsight/pocketsight/pkg/audioio"
	"github.com/pocketsight/pocketsight/pkg/camera"
	"github.com/pocketsight/pocketsight/pkg/conversation"
	"github.com/pocketsight/pocketsight/pkg/vision"
	"github.com/pocketsight/pocketsight/pkg/wakeword"
)

// callRecorder captures the order of microphone ownership calls across
// goroutines, so transfer ordering can be asserted, not just final state.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) record(name string) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()
}

func (r *callRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// recordedMic wraps a mock source to log Start/Stop ordering.
type recordedMic struct {
	*audioio.MockSource
	rec *callRecorder
}

func (m *recordedMic) Start(ctx context.Context) error {
	m.rec.record("mic.start")
	return m.MockSource.Start(ctx)
}

func (m *recordedMic) Stop() error {
	m.rec.record("mic.stop")
	return m.MockSource.Stop()
}

// fakeListener stands in for the wake-phrase listener. Like the real one, it
// releases the microphone before delivering an activation.
type fakeListener struct {
	rec *callRecorder // optional ordering log

	mu    sync.Mutex
	armed bool
	arms  int
	acts  chan wakeword.Activation
}

func newFakeListener() *fakeListener {
	return &fakeListener{acts: make(chan wakeword.Activation, 1)}
}

func (f *fakeListener) Arm(ctx context.Context) error {
	if f.rec != nil {
		f.rec.record("listener.arm")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed {
		return wakeword.ErrAlreadyArmed
	}
	f.armed = true
	f.arms++
	return nil
}

func (f *fakeListener) Disarm() error {
	if f.rec != nil {
		f.rec.record("listener.disarm")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	return nil
}

func (f *fakeListener) Armed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

func (f *fakeListener) Activations() <-chan wakeword.Activation {
	return f.acts
}

func (f *fakeListener) Arms() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.arms
}

// wake simulates a wake-phrase match: auto-disarm, then emit.
func (f *fakeListener) wake() {
	f.mu.Lock()
	f.armed = false
	f.mu.Unlock()
	f.acts <- wakeword.Activation{Hotword: "hey_pi", Confidence: 0.95, At: time.Now()}
}

type harness struct {
	orch     *Orchestrator
	listener *fakeListener
	mic      *audioio.MockSource
	speaker  *audioio.MockSink
	cam      *camera.Mock
	analyzer *vision.MockAnalyzer

	mu      sync.Mutex
	clients []*conversation.Mock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 5 * time.Millisecond

	h := &harness{
		listener: newFakeListener(),
		mic:      audioio.NewMockSource(cfg, nil),
		speaker:  audioio.NewMockSink(cfg, nil),
		cam:      camera.NewMock(),
		analyzer: &vision.MockAnalyzer{Response: "I can see two twenty-dollar notes. That's forty dollars total."},
	}

	factory := func() (conversation.Client, error) {
		m := conversation.NewMock()
		h.mu.Lock()
		h.clients = append(h.clients, m)
		h.mu.Unlock()
		return m, nil
	}

	orch, err := New(Options{
		Listener:  h.listener,
		Mic:       h.mic,
		Speaker:   h.speaker,
		Camera:    h.cam,
		Analyzer:  h.analyzer,
		NewClient: factory,
		Config: Config{
			ToolTimeout:    300 * time.Millisecond,
			ConnectTimeout: time.Second,
		},
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	h.orch = orch

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = orch.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("orchestrator did not shut down")
		}
	})

	waitFor(t, func() bool { return h.listener.Armed() }, "listener never armed")
	return h
}

func (h *harness) client() *conversation.Mock {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return nil
	}
	return h.clients[len(h.clients)-1]
}

func (h *harness) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// startSession wakes the orchestrator and waits until the session is live.
func (h *harness) startSession(t *testing.T) *conversation.Mock {
	t.Helper()
	h.listener.wake()
	waitFor(t, func() bool { return h.orch.State() == StateActive }, "session never became active")
	return h.client()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWakeActivationStartsSession(t *testing.T) {
	h := newHarness(t)

	if h.orch.MicHolder() != micOwnerWakeword {
		t.Errorf("idle microphone holder should be wakeword, got %q", h.orch.MicHolder())
	}

	client := h.startSession(t)

	if !client.IsConnected() {
		t.Error("session client should be connected")
	}
	if h.orch.MicHolder() != micOwnerSession {
		t.Errorf("active microphone holder should be session, got %q", h.orch.MicHolder())
	}
	if h.listener.Armed() {
		t.Error("listener must not hold the microphone during a session")
	}
	if !h.mic.Running() {
		t.Error("session should be streaming the microphone")
	}

	// Microphone audio flows to the agent.
	waitFor(t, func() bool { return client.AudioSentCount() > 0 }, "no microphone audio reached the agent")
}

func TestActivationDroppedWhileActive(t *testing.T) {
	h := newHarness(t)
	h.startSession(t)

	// A second activation mid-session must not start another session.
	h.listener.acts <- wakeword.Activation{Hotword: "hey_pi", Confidence: 0.9, At: time.Now()}
	time.Sleep(50 * time.Millisecond)

	if h.clientCount() != 1 {
		t.Errorf("expected 1 session client, got %d", h.clientCount())
	}
	if h.orch.State() != StateActive {
		t.Errorf("expected state active, got %s", h.orch.State())
	}
}

func TestToolCallCapturesAndAnswers(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	client.SimulateToolCall(conversation.ToolCall{ID: "call-1", Name: "identify_cash"})

	waitFor(t, func() bool { return len(client.Results()) == 1 }, "tool call never answered")

	res := client.Results()[0]
	if res.CallID != "call-1" {
		t.Errorf("call id mismatch: %s", res.CallID)
	}
	if res.IsError {
		t.Errorf("expected success, got error result: %s", res.Result)
	}
	if res.Result != h.analyzer.Response {
		t.Errorf("unexpected result: %q", res.Result)
	}
	if h.cam.Captures() != 1 {
		t.Errorf("expected 1 capture, got %d", h.cam.Captures())
	}

	calls := h.analyzer.Calls()
	if len(calls) != 1 || calls[0] != vision.IntentCash {
		t.Errorf("expected one cash analysis, got %v", calls)
	}
}

func TestCameraFailureKeepsSessionActive(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	h.cam.Err = camera.ErrUnavailable

	client.SimulateToolCall(conversation.ToolCall{ID: "call-1", Name: "identify_item"})
	waitFor(t, func() bool { return len(client.Results()) == 1 }, "tool call never answered")

	res := client.Results()[0]
	if !res.IsError {
		t.Error("camera failure should produce an error result")
	}
	if res.Result != msgCameraFailure {
		t.Errorf("unexpected failure message: %q", res.Result)
	}

	// The conversation survives the failed tool call.
	if h.orch.State() != StateActive {
		t.Errorf("session should stay active, got %s", h.orch.State())
	}
	if !client.IsConnected() {
		t.Error("client should stay connected")
	}
}

func TestAnalysisFailureProducesErrorResult(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	h.analyzer.Err = vision.ErrEmptyResponse

	client.SimulateToolCall(conversation.ToolCall{ID: "call-1", Name: "read_packaging"})
	waitFor(t, func() bool { return len(client.Results()) == 1 }, "tool call never answered")

	res := client.Results()[0]
	if !res.IsError || res.Result != msgAnalysisFailure {
		t.Errorf("unexpected result: %+v", res)
	}
	if h.orch.State() != StateActive {
		t.Error("session should stay active after an analysis failure")
	}
}

func TestHungCaptureAnsweredWithinBound(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	// The camera never responds; the tool deadline must produce an answer.
	h.cam.Delay = time.Minute

	start := time.Now()
	client.SimulateToolCall(conversation.ToolCall{ID: "call-1", Name: "identify_cash"})
	waitFor(t, func() bool { return len(client.Results()) == 1 }, "tool call never answered")

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("answer took %s, deadline not enforced", elapsed)
	}
	if res := client.Results()[0]; !res.IsError {
		t.Error("timed-out capture should produce an error result")
	}
}

func TestUnknownToolAnsweredWithoutCapture(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	client.SimulateToolCall(conversation.ToolCall{ID: "call-1", Name: "create_listing"})
	waitFor(t, func() bool { return len(client.Results()) == 1 }, "tool call never answered")

	res := client.Results()[0]
	if !res.IsError || res.Result != msgUnknownTool {
		t.Errorf("unexpected result: %+v", res)
	}
	if h.cam.Captures() != 0 {
		t.Error("unknown tool must not trigger a capture")
	}
	if h.orch.State() != StateActive {
		t.Error("session should stay active")
	}
}

func TestSerializedToolDispatch(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	h.cam.Delay = 30 * time.Millisecond

	client.SimulateToolCall(conversation.ToolCall{ID: "call-1", Name: "identify_cash"})
	client.SimulateToolCall(conversation.ToolCall{ID: "call-2", Name: "identify_item"})

	waitFor(t, func() bool { return len(client.Results()) == 2 }, "tool calls never answered")

	results := client.Results()
	if results[0].CallID != "call-1" || results[1].CallID != "call-2" {
		t.Errorf("results out of order: %s, %s", results[0].CallID, results[1].CallID)
	}
}

func TestDisconnectTearsDownAndRearms(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	client.SimulateDisconnect(conversation.ErrConnectionClosed)

	waitFor(t, func() bool { return h.orch.State() == StateIdle }, "never returned to idle")
	waitFor(t, func() bool { return h.listener.Armed() }, "listener never re-armed")

	if h.mic.Running() {
		t.Error("microphone must be released before the listener is re-armed")
	}
	if h.orch.MicHolder() != micOwnerWakeword {
		t.Errorf("microphone holder should be wakeword, got %q", h.orch.MicHolder())
	}

	// The next wake phrase starts a fresh session.
	second := h.startSession(t)
	if second == client {
		t.Error("expected a fresh client for the new session")
	}
	if h.clientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", h.clientCount())
	}
}

func TestOperatorStopEndsSession(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	h.orch.EndSession()

	waitFor(t, func() bool { return h.orch.State() == StateIdle }, "never returned to idle")
	if client.IsConnected() {
		t.Error("client should be closed after operator stop")
	}
	if !h.listener.Armed() {
		t.Error("listener should be re-armed")
	}
}

func TestMicTransferRevokesBeforeGranting(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 5 * time.Millisecond

	rec := &callRecorder{}
	listener := newFakeListener()
	listener.rec = rec
	mic := &recordedMic{MockSource: audioio.NewMockSource(cfg, nil), rec: rec}
	speaker := audioio.NewMockSink(cfg, nil)
	client := conversation.NewMock()

	orch, err := New(Options{
		Listener:  listener,
		Mic:       mic,
		Speaker:   speaker,
		Camera:    camera.NewMock(),
		Analyzer:  &vision.MockAnalyzer{Response: "ok"},
		NewClient: func() (conversation.Client, error) { return client, nil },
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	waitFor(t, func() bool { return listener.Armed() }, "listener never armed")
	listener.wake()
	waitFor(t, func() bool { return orch.State() == StateActive }, "session never became active")

	client.SimulateDisconnect(conversation.ErrConnectionClosed)
	waitFor(t, func() bool {
		return orch.State() == StateIdle && listener.Armed()
	}, "never re-armed after disconnect")

	// Every transfer must revoke the old owner strictly before granting
	// the new one: disarm before the session's mic start on activation,
	// mic stop before re-arm on teardown.
	want := []string{"listener.arm", "listener.disarm", "mic.start", "mic.stop", "listener.arm"}
	got := rec.Calls()
	if len(got) != len(want) {
		t.Fatalf("expected transfer sequence %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transfer %d: expected %s, got %s (full sequence %v)", i, want[i], got[i], got)
		}
	}
}

func TestStaleSessionEndIgnored(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	// An end event tagged with a session that is no longer current must
	// not tear down the live one.
	h.orch.endSession(uuid.New(), conversation.ErrConnectionClosed)
	time.Sleep(50 * time.Millisecond)

	if h.orch.State() != StateActive {
		t.Fatalf("live session torn down by stale end event, state %s", h.orch.State())
	}
	if !client.IsConnected() {
		t.Error("client should still be connected")
	}

	// The session's own end event still tears it down.
	client.SimulateDisconnect(conversation.ErrConnectionClosed)
	waitFor(t, func() bool { return h.orch.State() == StateIdle }, "never returned to idle")
}

func TestAgentAudioReachesSpeaker(t *testing.T) {
	h := newHarness(t)
	client := h.startSession(t)

	chunk := audioio.AudioChunk{Samples: []int16{100, -100, 200}, SampleRate: 16000, Channels: 1}
	client.SimulateAudio(chunk.Bytes())

	waitFor(t, func() bool { return h.speaker.WrittenCount() > 0 }, "agent audio never played")
}

func TestEventsPublished(t *testing.T) {
	cfg := audioio.DefaultConfig()
	cfg.Backend = audioio.BackendMock
	cfg.BufferDuration = 5 * time.Millisecond

	listener := newFakeListener()
	mic := audioio.NewMockSource(cfg, nil)
	speaker := audioio.NewMockSink(cfg, nil)

	var mu sync.Mutex
	var events []Event

	client := conversation.NewMock()
	orch, err := New(Options{
		Listener: listener,
		Mic:      mic,
		Speaker:  speaker,
		Camera:   camera.NewMock(),
		Analyzer: &vision.MockAnalyzer{Response: "ok"},
		NewClient: func() (conversation.Client, error) {
			return client, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	orch.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	waitFor(t, func() bool { return listener.Armed() }, "listener never armed")
	listener.wake()
	waitFor(t, func() bool { return orch.State() == StateActive }, "session never became active")

	mu.Lock()
	defer mu.Unlock()

	var sawActivation, sawActive bool
	for _, ev := range events {
		if ev.Type == EventActivation {
			sawActivation = true
		}
		if ev.Type == EventState && ev.State == "active" {
			sawActive = true
		}
	}
	if !sawActivation {
		t.Error("no activation event published")
	}
	if !sawActive {
		t.Error("no active state event published")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
}

func TestDefaultToolRegistry(t *testing.T) {
	reg := DefaultTools()

	names := reg.Names()
	want := []string{"identify_cash", "identify_item", "read_packaging"}
	if len(names) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(names))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("tool %d: expected %s, got %s", i, name, names[i])
		}
	}

	tool, ok := reg.Lookup("identify_cash")
	if !ok || tool.Intent != vision.IntentCash {
		t.Error("identify_cash should map to the cash intent")
	}
	if _, ok := reg.Lookup("create_listing"); ok {
		t.Error("unregistered tool should not resolve")
	}
}
