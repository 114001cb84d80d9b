// Package engine abstracts the durable-execution substrate behind the agent
// proxy. A driver delivers run requests to session entities and exposes their
// persisted state; the in-process driver serves tests and embedded use, the
// temporal driver provides real durability.
package engine

import (
	"context"
	"errors"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
)

// ErrSessionNotFound is returned by ReadState when the session has no
// persisted state yet. Pollers treat it as "response not ready", not as a
// terminal failure, because signal delivery may still be materializing the
// entity.
var ErrSessionNotFound = errors.New("engine: session not found")

type (
	// Signaler delivers a run request to the session's entity with
	// fire-and-forget semantics: a nil return means the request was accepted
	// for delivery, not that it has executed.
	Signaler interface {
		SignalRun(ctx context.Context, id session.ID, req *api.RunRequest) error
	}

	// Caller invokes the session's entity synchronously, blocking for the
	// full duration of the underlying model call.
	Caller interface {
		CallRun(ctx context.Context, id session.ID, req *api.RunRequest) (*chat.Response, error)
	}

	// StateReader reads the session's persisted state envelope, encoded.
	StateReader interface {
		ReadState(ctx context.Context, id session.ID) ([]byte, error)
	}

	// Engine is the full driver surface consumed by the durable proxy.
	Engine interface {
		Signaler
		StateReader
	}
)
