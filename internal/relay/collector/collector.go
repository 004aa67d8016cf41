// Package collector decides when an actor has finished a multi-message reply.
//
// The upstream bots send no end-of-reply marker, so completion is inferred from
// silence: once a message arrives, the session closes after IdleThreshold
// without new messages. TotalTimeout bounds the whole session either way.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/relay/normalize"
)

// Profile holds the timing configuration for one actor and endpoint kind.
type Profile struct {
	TotalTimeout  time.Duration
	IdleThreshold time.Duration
	MaxMessages   int // 0 = unbounded
}

// Reasons a session closed.
const (
	ReasonIdle         = "idle threshold elapsed"
	ReasonTotalTimeout = "total timeout elapsed"
	ReasonMessageCap   = "message cap reached"
	ReasonStreamClosed = "stream closed"
	ReasonContextDone  = "context done"
)

// ControlFunc reports whether a message is a bot deflection (not found, bad
// format, anti-spam) that belongs to the session even without a correlation key.
type ControlFunc func(actor domain.ActorID, m domain.ParsedMessage) bool

// Collector runs sessions to completion.
type Collector struct {
	normalizer normalize.Normalizer
	control    ControlFunc
	log        *slog.Logger
}

// New creates a collector. control may be nil.
func New(normalizer normalize.Normalizer, control ControlFunc, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		normalizer: normalizer,
		control:    control,
		log:        log,
	}
}

// Collect consumes stream until the session reaches a terminal state. The
// total timeout is measured from s.StartedAt, not from the call.
//
// Messages from other senders, or whose correlation key does not match, are
// dropped. A closed stream or a done ctx ends the session as the total timeout
// would: CLOSED_OK with what was collected, CLOSED_EMPTY_TIMEOUT otherwise.
func (c *Collector) Collect(
	ctx context.Context,
	s *Session,
	profile Profile,
	stream <-chan domain.IncomingMessage,
) Outcome {
	// The total budget runs from session open, so time spent sending counts.
	total := time.NewTimer(profile.TotalTimeout - time.Since(s.StartedAt))
	defer total.Stop()

	var idle *time.Timer
	var idleC <-chan time.Time
	defer func() {
		if idle != nil {
			idle.Stop()
		}
	}()

	for {
		select {
		case in, ok := <-stream:
			if !ok {
				return c.finish(s, ReasonStreamClosed)
			}
			pm, accepted := c.accept(s, in)
			if !accepted {
				continue
			}
			if err := s.Append(pm, time.Now()); err != nil {
				c.log.Error("Failed to append message", "query_id", s.QueryID, "error", err)
				continue
			}
			if profile.MaxMessages > 0 && len(s.Messages) >= profile.MaxMessages {
				return c.finish(s, ReasonMessageCap)
			}
			if idle == nil {
				idle = time.NewTimer(profile.IdleThreshold)
				idleC = idle.C
			} else {
				idle.Reset(profile.IdleThreshold)
			}

		case <-idleC:
			return c.finish(s, ReasonIdle)

		case <-total.C:
			return c.finish(s, ReasonTotalTimeout)

		case <-ctx.Done():
			return c.finish(s, ReasonContextDone)
		}
	}
}

func (c *Collector) accept(s *Session, in domain.IncomingMessage) (domain.ParsedMessage, bool) {
	if in.Sender != s.Actor {
		return domain.ParsedMessage{}, false
	}

	pm := domain.ParsedMessage{
		IncomingMessage: in,
		Normalized:      c.normalizer.Normalize(in.RawText),
	}
	if pm.Fields == nil {
		pm.Fields = make(map[string]string)
	}

	if pm.MatchesKey(s.CorrelationKey) {
		return pm, true
	}
	if c.control != nil && c.control(s.Actor, pm) {
		return pm, true
	}

	c.log.Debug("Dropping message for another query",
		"query_id", s.QueryID,
		"actor", s.Actor,
		"correlation_key", s.CorrelationKey,
	)
	return domain.ParsedMessage{}, false
}

func (c *Collector) finish(s *Session, reason string) Outcome {
	now := time.Now()
	if err := s.Close(reason, now); err != nil {
		c.log.Error("Failed to close session", "query_id", s.QueryID, "error", err)
	}

	c.log.Debug("Session closed",
		"query_id", s.QueryID,
		"actor", s.Actor,
		"state", s.State,
		"messages", len(s.Messages),
		"reason", reason,
	)

	return Outcome{
		State:    s.State,
		Messages: s.Messages,
		Reason:   reason,
		Duration: now.Sub(s.StartedAt),
	}
}
