package web

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/pocketsight/pocketsight/pkg/hub"
)

// handleStatus returns the assistant's current state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return c.JSON(s.status)
}

// handleGetEvents returns the buffered event history.
func (s *Server) handleGetEvents(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	return c.JSON(s.events)
}

// handleGetTranscript returns the buffered conversation transcript.
func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	s.transcriptMu.RLock()
	defer s.transcriptMu.RUnlock()
	return c.JSON(s.transcript)
}

// handleSnapshot captures a still from the camera and returns it as JPEG.
// Snapshots share the camera with tool calls, so this can be slow.
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	if s.OnSnapshot == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "snapshot not configured",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	img, err := s.OnSnapshot(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(img)
}

// handleEndSession is the operator-stop control: it requests teardown of
// the active session, if any.
func (s *Server) handleEndSession(c *fiber.Ctx) error {
	if s.OnEndSession == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "session control not configured",
		})
	}

	s.OnEndSession()
	s.logger.Info("session end requested via dashboard")

	return c.JSON(fiber.Map{"ok": true})
}

// handleEventsWS streams orchestrator events to the client.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	// Replay the buffer so a fresh client sees recent history.
	s.eventsMu.RLock()
	for _, ev := range s.events {
		if err := c.WriteJSON(ev); err != nil {
			s.eventsMu.RUnlock()
			c.Close()
			return
		}
	}
	s.eventsMu.RUnlock()

	hub.NewClient(s.eventHub, c).Run()
}

// handleStatusWS streams status updates to the client.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()

	if err := c.WriteJSON(status); err != nil {
		c.Close()
		return
	}

	hub.NewClient(s.statusHub, c).Run()
}
