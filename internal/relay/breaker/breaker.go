// Package breaker keeps per-actor failure memory and blocks actors that went
// silent for a fixed duration.
//
// Expiry is lazy: there is no background timer. The first IsBlocked call after
// the block window elapses clears the stored failure.
package breaker

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
)

// DefaultBlockDuration matches the longest window observed upstream.
const DefaultBlockDuration = 6 * time.Hour

// Breaker is the contract the dispatcher depends on.
type Breaker interface {
	IsBlocked(actor domain.ActorID) bool
	RecordFailure(actor domain.ActorID)
}

// ActorState is a point-in-time view of one actor's breaker entry.
type ActorState struct {
	Actor        domain.ActorID `json:"actor"`
	Blocked      bool           `json:"blocked"`
	LastFailure  *time.Time     `json:"last_fail"`
	BlockedUntil *time.Time     `json:"blocked_until,omitempty"`
}

// CircuitBreaker implements Breaker with an in-memory map guarded by a mutex.
type CircuitBreaker struct {
	mu            sync.Mutex
	blockDuration time.Duration
	lastFailure   map[domain.ActorID]time.Time
	now           func() time.Time
	onChange      func(actor domain.ActorID, blocked bool)
	log           *slog.Logger
}

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithStateCallback registers a function called on every blocked/unblocked transition.
// It runs outside the breaker lock.
func WithStateCallback(fn func(actor domain.ActorID, blocked bool)) Option {
	return func(cb *CircuitBreaker) { cb.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cb *CircuitBreaker) { cb.log = l }
}

// New creates a breaker. A non-positive duration falls back to DefaultBlockDuration.
func New(blockDuration time.Duration, opts ...Option) *CircuitBreaker {
	if blockDuration <= 0 {
		blockDuration = DefaultBlockDuration
	}
	cb := &CircuitBreaker{
		blockDuration: blockDuration,
		lastFailure:   make(map[domain.ActorID]time.Time),
		now:           time.Now,
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// IsBlocked reports whether the actor failed within the block window.
func (cb *CircuitBreaker) IsBlocked(actor domain.ActorID) bool {
	cb.mu.Lock()
	last, ok := cb.lastFailure[actor]
	if !ok {
		cb.mu.Unlock()
		return false
	}
	if cb.now().Sub(last) < cb.blockDuration {
		cb.mu.Unlock()
		return true
	}
	delete(cb.lastFailure, actor)
	cb.mu.Unlock()

	cb.log.Info("Actor block expired, unblocking", "actor", actor)
	cb.notify(actor, false)
	return false
}

// RecordFailure overwrites the actor's last failure time with now.
func (cb *CircuitBreaker) RecordFailure(actor domain.ActorID) {
	cb.mu.Lock()
	cb.lastFailure[actor] = cb.now()
	cb.mu.Unlock()

	cb.log.Warn("Actor failed, blocking", "actor", actor, "duration", cb.blockDuration)
	cb.notify(actor, true)
}

// Snapshot returns the state of the given actors, applying lazy expiry.
func (cb *CircuitBreaker) Snapshot(actors []domain.ActorID) []ActorState {
	states := make([]ActorState, 0, len(actors))
	for _, a := range actors {
		st := ActorState{Actor: a, Blocked: cb.IsBlocked(a)}

		cb.mu.Lock()
		if last, ok := cb.lastFailure[a]; ok {
			until := last.Add(cb.blockDuration)
			st.LastFailure = &last
			st.BlockedUntil = &until
		}
		cb.mu.Unlock()

		states = append(states, st)
	}
	return states
}

// BlockDuration returns the configured block window.
func (cb *CircuitBreaker) BlockDuration() time.Duration {
	return cb.blockDuration
}

func (cb *CircuitBreaker) notify(actor domain.ActorID, blocked bool) {
	if cb.onChange != nil {
		cb.onChange(actor, blocked)
	}
}
