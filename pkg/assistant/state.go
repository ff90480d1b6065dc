// Package assistant runs the session orchestrator: the state machine that
// owns the microphone, turns wake-phrase activations into live agent
// sessions, and answers every agent tool call exactly once.
package assistant

// State is the orchestrator lifecycle state.
type State int

const (
	// StateIdle means the wake-phrase listener holds the microphone.
	StateIdle State = iota

	// StateActivating means a wake phrase was heard and the agent session
	// is being established.
	StateActivating

	// StateActive means a live agent session holds the microphone.
	StateActive

	// StateTeardown means the session is being dismantled before the
	// listener is re-armed.
	StateTeardown
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Microphone owner labels. Exactly one holder at any time; ownership moves
// only through Orchestrator.transferMic, which revokes before granting.
const (
	micOwnerNone     = ""
	micOwnerWakeword = "wakeword"
	micOwnerSession  = "session"
)
