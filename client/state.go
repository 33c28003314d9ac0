package client

import (
	"fmt"
	"log/slog"
)

// ConnectionState is a node in the session lifecycle state machine.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	HandshakingVersion
	Negotiating
	Authenticating
	Initializing
	Streaming
	Draining
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case HandshakingVersion:
		return "HandshakingVersion"
	case Negotiating:
		return "Negotiating"
	case Authenticating:
		return "Authenticating"
	case Initializing:
		return "Initializing"
	case Streaming:
		return "Streaming"
	case Draining:
		return "Draining"
	default:
		return "Unknown"
	}
}

// validTransitions enumerates every legal edge in the connection lifecycle.
// Failure from any pre-Streaming state goes directly to Disconnected with a
// recorded FailureCause; Streaming only ever fails into Draining, since a
// live session has a receive worker and possibly in-flight writes that must
// be torn down before the state can go idle again.
var validTransitions = map[ConnectionState][]ConnectionState{
	Disconnected:        {Connecting},
	Connecting:          {HandshakingVersion, Disconnected},
	HandshakingVersion:  {Negotiating, Disconnected},
	Negotiating:         {Authenticating, Disconnected},
	Authenticating:      {Initializing, Disconnected},
	Initializing:        {Streaming, Disconnected},
	Streaming:           {Draining},
	Draining:            {Disconnected},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
func CanTransition(from, to ConnectionState) bool {
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// TransitionError reports an attempt to move the state machine along an
// edge that validTransitions does not allow.
type TransitionError struct {
	From, To ConnectionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

// StateMachine tracks the current ConnectionState and the cause of the most
// recent failure, if any. It is not safe for concurrent use; callers must
// serialize transitions (the receive worker and the public Client API are
// the only callers, and Client serializes them with its stateMu — see
// client.go).
type StateMachine struct {
	current ConnectionState
	cause   error
	log     *slog.Logger
}

func newStateMachine(log *slog.Logger) *StateMachine {
	if log == nil {
		log = slog.Default()
	}
	return &StateMachine{current: Disconnected, log: log}
}

func (m *StateMachine) Current() ConnectionState { return m.current }

// FailureCause returns the error recorded by the most recent transition into
// Disconnected, or nil if the session ended (or has not yet started) without
// one.
func (m *StateMachine) FailureCause() error { return m.cause }

// Transition moves the state machine to `to`, logging the edge. It returns
// a *TransitionError without changing state if the edge is illegal.
func (m *StateMachine) Transition(to ConnectionState) error {
	if !CanTransition(m.current, to) {
		return &TransitionError{From: m.current, To: to}
	}
	m.log.Debug("state transition", "from", m.current.String(), "to", to.String())
	m.current = to
	return nil
}

// Fail records cause and transitions to `to` (Disconnected from a
// pre-Streaming state, or Draining from Streaming). The edge is checked
// like any other transition — a
// Fail call with an illegal destination is a programming error and panics,
// since it would mean a new state was added to the machine without updating
// its failure path.
func (m *StateMachine) Fail(to ConnectionState, cause error) {
	if !CanTransition(m.current, to) {
		panic(fmt.Sprintf("client: Fail(%s) not reachable from %s", to, m.current))
	}
	m.cause = cause
	m.log.Warn("state transition on failure", "from", m.current.String(), "to", to.String(), "cause", cause)
	m.current = to
}
