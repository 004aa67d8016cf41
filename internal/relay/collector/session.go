package collector

import (
	"fmt"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
)

// Session is one dispatch-and-collect attempt against one actor for one query.
// It is owned by a single goroutine and not safe for concurrent use.
type Session struct {
	QueryID        string
	Actor          domain.ActorID
	CorrelationKey string
	StartedAt      time.Time
	LastActivityAt time.Time
	Messages       []domain.ParsedMessage
	State          State

	transitions []Transition
}

// NewSession creates a session in the WAITING state.
func NewSession(q domain.Query, actor domain.ActorID, now time.Time) *Session {
	return &Session{
		QueryID:        q.ID,
		Actor:          actor,
		CorrelationKey: q.CorrelationKey,
		StartedAt:      now,
		LastActivityAt: now,
		State:          StateWaiting,
	}
}

// Append records an accepted message and moves the session to COLLECTING.
func (s *Session) Append(m domain.ParsedMessage, now time.Time) error {
	if err := s.transition(StateCollecting, "message received", now); err != nil {
		return err
	}
	s.Messages = append(s.Messages, m)
	s.LastActivityAt = now
	return nil
}

// Close moves the session to its terminal state: CLOSED_OK when anything was
// collected, CLOSED_EMPTY_TIMEOUT otherwise.
func (s *Session) Close(reason string, now time.Time) error {
	if s.State.IsTerminal() {
		return nil
	}
	to := StateClosedOK
	if s.State == StateWaiting {
		to = StateEmptyTimeout
	}
	return s.transition(to, reason, now)
}

// Transitions returns the recorded state history.
func (s *Session) Transitions() []Transition {
	out := make([]Transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

func (s *Session) transition(to State, reason string, now time.Time) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}
	if s.State != to {
		s.transitions = append(s.transitions, Transition{
			From:      s.State,
			To:        to,
			Reason:    reason,
			Timestamp: now,
		})
	}
	s.State = to
	return nil
}

// Outcome is the result of running a session to a terminal state.
type Outcome struct {
	State    State
	Messages []domain.ParsedMessage
	Reason   string
	Duration time.Duration
}
