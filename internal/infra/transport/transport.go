// Package transport defines the chat-session collaborator the relay talks through.
//
// A Transport is a single logical session: it is connected for one query and
// disconnected when that query ends. Implementations live in sub-packages.
package transport

import (
	"context"
	"errors"

	"github.com/vietddude/botrelay/internal/core/domain"
)

var (
	// ErrNotConnected is returned by Send before Connect or after Disconnect.
	ErrNotConnected = errors.New("transport not connected")

	// ErrUnauthorized is returned when the bridge rejects the session credentials.
	ErrUnauthorized = errors.New("transport session not authorized")
)

// Transport is one chat session authenticated as the relay's upstream identity.
type Transport interface {
	// Connect opens the session.
	Connect(ctx context.Context) error

	// IsAuthorized reports whether the session is logged in upstream.
	IsAuthorized(ctx context.Context) (bool, error)

	// Send delivers text to the actor. Implementations return an error wrapping
	// domain.ErrActorUnreachable when the actor itself refuses delivery.
	Send(ctx context.Context, actor domain.ActorID, text string) error

	// Messages is the live stream of incoming messages. It is closed on disconnect.
	Messages() <-chan domain.IncomingMessage

	// Disconnect closes the session. It is safe to call more than once.
	Disconnect() error
}

// Factory creates a fresh, unconnected transport for each query.
type Factory func() Transport
