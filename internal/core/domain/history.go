package domain

import "time"

// OutcomeOK is the outcome of a query that produced a result.
const OutcomeOK = "ok"

// DispatchRecord is the audit entry written once per handled query.
type DispatchRecord struct {
	ID             string        `json:"id" db:"id"`
	QueryID        string        `json:"query_id" db:"query_id"`
	Command        string        `json:"command" db:"command"`
	CorrelationKey string        `json:"correlation_key,omitempty" db:"correlation_key"`
	Kind           EndpointKind  `json:"kind" db:"kind"`
	Outcome        string        `json:"outcome" db:"outcome"` // OutcomeOK or an ErrorKind
	Actor          ActorID       `json:"actor,omitempty" db:"actor"`
	MessageCount   int           `json:"message_count" db:"message_count"`
	MediaURLs      []string      `json:"media_urls,omitempty" db:"-"`
	FromCache      bool          `json:"from_cache" db:"from_cache"`
	Error          string        `json:"error,omitempty" db:"error_msg"`
	Duration       time.Duration `json:"duration" db:"-"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}
