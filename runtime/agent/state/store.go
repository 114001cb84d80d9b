package state

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Load when no envelope has been persisted
// for the session.
var ErrNotFound = errors.New("state: session state not found")

// Store persists encoded state envelopes keyed by session id. Implementations
// store the envelope bytes opaquely; versioning and field preservation are the
// codec's concern, not the store's. Implementations must be safe for
// concurrent use; per-session write ordering is the engine's responsibility.
type Store interface {
	// Load returns the persisted envelope bytes for the session, or
	// ErrNotFound when none exist.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Save persists the envelope bytes for the session, replacing any
	// previous document.
	Save(ctx context.Context, sessionID string, doc []byte) error
}
