// Package conversation maintains the realtime voice session with the remote
// agent over WebSocket.
//
// The Client streams microphone audio up and delivers agent audio, tool
// calls, and transcripts back through callbacks. Tool calls are not executed
// here; the session orchestrator decides what runs and submits the result
// through SubmitToolResult.
package conversation

import (
	"context"
)

// ConnectionState represents the WebSocket connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates connection is being established.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ToolCall is an agent-initiated request for the device to run a local tool.
type ToolCall struct {
	// ID correlates the eventual result with this call.
	ID string

	// Name is the tool the agent wants to run.
	Name string

	// Parameters are the agent-supplied arguments, if any.
	Parameters map[string]any
}

// Client is the interface to the realtime agent session.
// Implementations handle the WebSocket connection and message processing.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection. Safe to call repeatedly.
	Close() error

	// IsConnected returns true if connected.
	IsConnected() bool

	// SendAudio streams one chunk of microphone audio to the agent.
	SendAudio(audio []byte) error

	// SubmitToolResult returns a tool call result to the agent. Every tool
	// call the agent makes must eventually be answered through this, error
	// or not, so the agent can speak an outcome.
	SubmitToolResult(callID, result string, isError bool) error

	// Callbacks. Set these before Connect; they are invoked from the
	// client's read goroutine.

	// OnAudio is called with each chunk of agent speech (PCM16).
	OnAudio(fn func(audio []byte))

	// OnAudioDone is called when an agent response finishes streaming.
	OnAudioDone(fn func())

	// OnTranscript is called with user and agent transcripts.
	OnTranscript(fn func(role, text string))

	// OnToolCall is called when the agent invokes a client tool.
	OnToolCall(fn func(call ToolCall))

	// OnInterruption is called when the user talks over the agent;
	// buffered playback should be discarded.
	OnInterruption(fn func())

	// OnError is called on protocol-level errors from the agent.
	OnError(fn func(err error))

	// OnDisconnect is called exactly once when the connection ends.
	// err is nil for a clean shutdown.
	OnDisconnect(fn func(err error))
}
