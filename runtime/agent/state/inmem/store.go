// Package inmem provides a process-local state store, suitable for tests and
// for the in-process engine driver.
package inmem

import (
	"context"
	"sync"

	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

// Store keeps encoded envelopes in a map. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// Load implements state.Store.
func (s *Store) Load(_ context.Context, sessionID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[sessionID]
	if !ok {
		return nil, state.ErrNotFound
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

// Save implements state.Store.
func (s *Store) Save(_ context.Context, sessionID string, doc []byte) error {
	cp := make([]byte, len(doc))
	copy(cp, doc)
	s.mu.Lock()
	s.docs[sessionID] = cp
	s.mu.Unlock()
	return nil
}
