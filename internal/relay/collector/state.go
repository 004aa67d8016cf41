package collector

import (
	"errors"
	"time"
)

// State is the lifecycle state of a collection session.
type State string

const (
	StateWaiting      State = "WAITING"
	StateCollecting   State = "COLLECTING"
	StateClosedOK     State = "CLOSED_OK"
	StateEmptyTimeout State = "CLOSED_EMPTY_TIMEOUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
var ValidTransitions = map[State][]State{
	StateWaiting:    {StateCollecting, StateEmptyTimeout},
	StateCollecting: {StateCollecting, StateClosedOK},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateClosedOK || s == StateEmptyTimeout
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}
