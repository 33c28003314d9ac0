package client

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	path := []ConnectionState{
		Disconnected, Connecting, HandshakingVersion, Negotiating,
		Authenticating, Initializing, Streaming, Draining, Disconnected,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("CanTransition(%s, %s) = false, want true", path[i], path[i+1])
		}
	}
}

func TestCanTransitionRejectsSkippingStages(t *testing.T) {
	if CanTransition(Disconnected, Streaming) {
		t.Errorf("CanTransition(Disconnected, Streaming) = true, want false")
	}
	if CanTransition(Streaming, Disconnected) {
		t.Errorf("CanTransition(Streaming, Disconnected) = true, want false; Streaming must drain first")
	}
}

func TestStateMachineTransition(t *testing.T) {
	m := newStateMachine(nil)
	if m.Current() != Disconnected {
		t.Fatalf("initial state = %s, want Disconnected", m.Current())
	}
	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("Transition(Connecting): %v", err)
	}
	if m.Current() != Connecting {
		t.Fatalf("Current() = %s, want Connecting", m.Current())
	}
	if err := m.Transition(Streaming); err == nil {
		t.Fatalf("expected error transitioning Connecting -> Streaming directly")
	}
}

func TestStateMachineFailRecordsCause(t *testing.T) {
	m := newStateMachine(nil)
	m.Transition(Connecting)
	cause := &TransportError{Kind: ConnectTimeout}
	m.Fail(Disconnected, cause)
	if m.Current() != Disconnected {
		t.Fatalf("Current() = %s, want Disconnected", m.Current())
	}
	if m.FailureCause() != error(cause) {
		t.Errorf("FailureCause() = %v, want %v", m.FailureCause(), cause)
	}
}
