package sessions

import (
	"context"
	"errors"
	"time"
)

// DefaultSessionID is used when a client connects without naming a session.
const DefaultSessionID = "default"

// ErrSessionNotFound is returned by Lookup when no stream is registered under
// the requested id.
var ErrSessionNotFound = errors.New("session not found")

// Stream is an open event-stream connection as seen by the registry.
type Stream interface {
	// SessionID is the identifier the stream is registered under.
	SessionID() string
	// OpenedAt is when the connection was established.
	OpenedAt() time.Time
}

// Registry tracks open streams by session id. Implementations must be safe
// for concurrent use.
type Registry interface {
	// Register records s under s.SessionID(), replacing any existing entry.
	Register(ctx context.Context, s Stream) error
	// Unregister removes the entry for s.SessionID() if and only if it is s.
	// It reports whether an entry was removed.
	Unregister(ctx context.Context, s Stream) (bool, error)
	// Lookup returns the stream registered under sessionID.
	Lookup(ctx context.Context, sessionID string) (Stream, error)
	// Len reports the number of registered streams.
	Len() int
}
