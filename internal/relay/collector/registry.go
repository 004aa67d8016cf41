package collector

import (
	"errors"
	"sync"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
)

// ErrSessionActive is returned when a session for the same (query, actor) is still open.
var ErrSessionActive = errors.New("collection session already active")

// Registry tracks open sessions so that at most one exists per (query, actor).
type Registry struct {
	mu     sync.Mutex
	active map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Session)}
}

func sessionKey(queryID string, actor domain.ActorID) string {
	return queryID + "|" + string(actor)
}

// Open creates and registers a new session.
func (r *Registry) Open(q domain.Query, actor domain.ActorID) (*Session, error) {
	key := sessionKey(q.ID, actor)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[key]; ok {
		return nil, ErrSessionActive
	}
	s := NewSession(q, actor, time.Now())
	r.active[key] = s
	return s, nil
}

// Release removes a session from the registry.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, sessionKey(s.QueryID, s.Actor))
}

// Active returns the number of open sessions.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
