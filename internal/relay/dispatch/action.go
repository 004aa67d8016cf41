package dispatch

import (
	"errors"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/relay/collector"
)

// Action determines what the orchestrator does after one actor attempt.
type Action int

const (
	// ActionAccept aggregates the collected messages and returns.
	ActionAccept Action = iota
	// ActionReturn ends the query with an authoritative answer (format error, not found).
	ActionReturn
	// ActionFailover records a breaker failure and moves to the next actor.
	ActionFailover
	// ActionCooldown moves to the next actor after the rate-limit cooldown, without a breaker failure.
	ActionCooldown
	// ActionFatal ends the query with a transport error.
	ActionFatal
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionReturn:
		return "return"
	case ActionFailover:
		return "failover"
	case ActionCooldown:
		return "cooldown"
	case ActionFatal:
		return "fatal"
	}
	return "unknown"
}

// ClassifySendError determines the action for a failed Send.
func ClassifySendError(err error) Action {
	if errors.Is(err, domain.ErrActorUnreachable) {
		return ActionFailover
	}
	return ActionFatal
}

// ClassifyOutcome determines the action for a closed session. verdict is only
// consulted for CLOSED_OK sessions.
func ClassifyOutcome(out collector.Outcome, verdict domain.Verdict) Action {
	if out.State == collector.StateEmptyTimeout {
		// The actor never got a chance to answer.
		if out.Reason == collector.ReasonStreamClosed || out.Reason == collector.ReasonContextDone {
			return ActionFatal
		}
		return ActionFailover
	}

	switch verdict {
	case domain.VerdictFormatError, domain.VerdictNotFound:
		return ActionReturn
	case domain.VerdictRateLimited:
		return ActionCooldown
	}
	return ActionAccept
}
