package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies terminal query failures for callers.
type ErrorKind string

const (
	KindFormatError          ErrorKind = "format_error"
	KindNotFound             ErrorKind = "not_found"
	KindAllActorsBlocked     ErrorKind = "all_actors_blocked"
	KindNoResponse           ErrorKind = "no_response"
	KindRateLimitedExhausted ErrorKind = "rate_limited_exhausted"
	KindTransportUnavailable ErrorKind = "transport_unavailable"
)

var (
	ErrFormatError          = &Error{Kind: KindFormatError}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrAllActorsBlocked     = &Error{Kind: KindAllActorsBlocked}
	ErrNoResponse           = &Error{Kind: KindNoResponse}
	ErrRateLimitedExhausted = &Error{Kind: KindRateLimitedExhausted}
	ErrTransportUnavailable = &Error{Kind: KindTransportUnavailable}
)

// ErrActorUnreachable is returned by transports when a specific actor refuses
// delivery (e.g. it blocked the account). It is actor health, not transport health.
var ErrActorUnreachable = errors.New("actor unreachable")

// Error is the caller-facing failure of a query.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Actor   ActorID   `json:"bot_used,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds a query error of the given kind.
func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf extracts the error kind, or "" if err is not a query error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
