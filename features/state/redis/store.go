// Package redis provides a Redis-backed implementation of the agent state
// store. Envelope bytes are stored verbatim under one key per session; the
// state codec owns versioning and field preservation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

const defaultKeyPrefix = "agent:state:"

type (
	// Store implements state.Store on a Redis client.
	Store struct {
		client    redis.UniversalClient
		keyPrefix string
		ttl       time.Duration
	}

	// Options configures the store.
	Options struct {
		// Client is the Redis client. Required.
		Client redis.UniversalClient

		// KeyPrefix namespaces the session keys. Defaults to "agent:state:".
		KeyPrefix string

		// TTL expires session documents after inactivity. Zero means no
		// expiry; retention is then an external concern.
		TTL time.Duration
	}
)

// New returns a Store backed by Redis.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: opts.Client, keyPrefix: prefix, ttl: opts.TTL}, nil
}

// Load retrieves the session's envelope bytes.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	doc, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", state.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load state: %w", err)
	}
	return doc, nil
}

// Save upserts the session's envelope bytes, refreshing the TTL when one is
// configured.
func (s *Store) Save(ctx context.Context, sessionID string, doc []byte) error {
	if err := s.client.Set(ctx, s.key(sessionID), doc, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save state: %w", err)
	}
	return nil
}

func (s *Store) key(sessionID string) string {
	return s.keyPrefix + sessionID
}
