// Package health provides actor health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the relay or one actor.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"

	// StatusBlocked is reported for an actor held out by the circuit breaker.
	StatusBlocked SystemStatus = "blocked"
)

// ActorHealth contains the breaker state of one actor.
type ActorHealth struct {
	Actor        string       `json:"actor"`
	Status       SystemStatus `json:"status"`
	Blocked      bool         `json:"blocked"`
	LastFailure  *time.Time   `json:"last_fail,omitempty"`
	BlockedUntil *time.Time   `json:"blocked_until,omitempty"`
}

// Report contains the full relay health report.
type Report struct {
	SystemStatus SystemStatus  `json:"system_status"`
	Actors       []ActorHealth `json:"actors"`
	CheckedAt    time.Time     `json:"checked_at"`
}
