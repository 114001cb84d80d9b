package mongo

import (
	"context"
	"errors"

	clientsmongo "github.com/durableai/agent-sdk-go/features/state/mongo/clients/mongo"
)

// Store implements state.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Load retrieves the session's envelope bytes.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	return s.client.LoadDocument(ctx, sessionID)
}

// Save upserts the session's envelope bytes.
func (s *Store) Save(ctx context.Context, sessionID string, doc []byte) error {
	return s.client.SaveDocument(ctx, sessionID, doc)
}
