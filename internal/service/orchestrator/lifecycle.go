package orchestrator

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateActive - Session accepts frames and commands.
	StateActive State = iota
	// StateDraining - Input closed, queued work still running.
	StateDraining
	// StateClosed - Update stream closed after a full drain.
	StateClosed
	// StateAborted - Session was cancelled before it drained.
	StateAborted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateAborted:
		return "ABORTED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateActive, StateDraining, StateClosed, StateAborted} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("orchestrator: unknown session state %q", text)
}

// IsTerminal returns true if the state is terminal (CLOSED or ABORTED).
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateAborted
}

// Lifecycle tracks a session's state. Safe for concurrent use.
//
// State transitions:
//
//	ACTIVE ── CloseInput() ──→ DRAINING ── Finish() ──→ CLOSED
//	  │                          │
//	  └──────── Abort() ─────────┴──→ ABORTED
//
// Terminal states never change.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in ACTIVE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateActive}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// CloseInput moves ACTIVE to DRAINING and reports whether it did.
func (l *Lifecycle) CloseInput() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateActive {
		return false
	}
	l.state = StateDraining
	return true
}

// Finish moves a live session to CLOSED. Returns false if already terminal.
func (l *Lifecycle) Finish() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateClosed
	return true
}

// Abort moves a live session to ABORTED. Returns false if already terminal.
func (l *Lifecycle) Abort() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateAborted
	return true
}
