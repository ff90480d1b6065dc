// Package web provides a local dashboard for observing the assistant:
// live state, the event stream, the conversation transcript, and camera
// snapshots.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/pocketsight/pocketsight/pkg/assistant"
	"github.com/pocketsight/pocketsight/pkg/hub"
)

const (
	maxEvents     = 500
	maxTranscript = 200
)

// Status is the dashboard view of the assistant.
type Status struct {
	State           string `json:"state"`
	MicHolder       string `json:"mic_holder"`
	CameraAvailable bool   `json:"camera_available"`
	Session         string `json:"session,omitempty"`
}

// TranscriptEntry is one line of the user/agent conversation.
type TranscriptEntry struct {
	Time string `json:"time"`
	Role string `json:"role"`
	Text string `json:"text"`
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	statusMu sync.RWMutex
	status   Status

	eventsMu sync.RWMutex
	events   []assistant.Event

	transcriptMu sync.RWMutex
	transcript   []TranscriptEntry

	eventHub  *hub.Hub
	statusHub *hub.Hub

	// OnEndSession is invoked by the operator-stop endpoint.
	OnEndSession func()

	// OnSnapshot captures a JPEG for the snapshot endpoint.
	OnSnapshot func(ctx context.Context) ([]byte, error)
}

// NewServer creates a dashboard server listening on the given port.
func NewServer(port string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		port:       port,
		logger:     logger.With("component", "web"),
		events:     make([]assistant.Event, 0, maxEvents),
		transcript: make([]TranscriptEntry, 0, maxTranscript),
		eventHub:   hub.New("events", logger),
		statusHub:  hub.New("status", logger),
	}
	s.status.State = "idle"

	app := fiber.New(fiber.Config{
		AppName:               "Pocketsight Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleGetEvents)
	api.Get("/transcript", s.handleGetTranscript)
	api.Get("/snapshot", s.handleSnapshot)
	api.Post("/session/end", s.handleEndSession)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start starts the dashboard server. It blocks.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", "http://localhost:"+s.port)

	go s.eventHub.Run()
	go s.statusHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the dashboard server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server failed", "error", err)
		}
	}()
}

// HandleEvent records an orchestrator event and pushes it to clients.
// Wire it to assistant.Orchestrator.OnEvent.
func (s *Server) HandleEvent(ev assistant.Event) {
	s.eventsMu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	switch ev.Type {
	case assistant.EventState:
		s.UpdateStatus(func(st *Status) {
			st.State = ev.State
			if ev.State == "idle" {
				st.Session = ""
			}
		})
	case assistant.EventTranscript:
		entry := TranscriptEntry{
			Time: ev.At.Format("15:04:05"),
			Role: ev.Role,
			Text: ev.Text,
		}
		s.transcriptMu.Lock()
		s.transcript = append(s.transcript, entry)
		if len(s.transcript) > maxTranscript {
			s.transcript = s.transcript[1:]
		}
		s.transcriptMu.Unlock()
	}

	if ev.Session != "" {
		s.UpdateStatus(func(st *Status) { st.Session = ev.Session })
	}

	s.eventHub.BroadcastJSON(ev)
}

// UpdateStatus applies an update and broadcasts the new status to clients.
func (s *Server) UpdateStatus(update func(*Status)) {
	s.statusMu.Lock()
	update(&s.status)
	status := s.status
	s.statusMu.Unlock()

	s.statusHub.BroadcastJSON(status)
}

// Shutdown gracefully stops the dashboard server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}
