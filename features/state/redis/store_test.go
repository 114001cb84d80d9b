package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

func newTestStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	opts.Client = client
	s, err := New(opts)
	require.NoError(t, err)
	return s, mr
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	_, err := s.Load(ctx, "@agent_alice@k1")
	require.ErrorIs(t, err, state.ErrNotFound)

	doc := []byte(`{"schemaVersion":"1.0.0","data":{"conversationHistory":[]}}`)
	require.NoError(t, s.Save(ctx, "@agent_alice@k1", doc))

	got, err := s.Load(ctx, "@agent_alice@k1")
	require.NoError(t, err)
	require.JSONEq(t, string(doc), string(got))
}

func TestStoreKeysAreNamespaced(t *testing.T) {
	s, mr := newTestStore(t, Options{KeyPrefix: "custom:"})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "@agent_alice@k1", []byte("doc")))
	require.True(t, mr.Exists("custom:@agent_alice@k1"))
}

func TestStoreTTL(t *testing.T) {
	s, mr := newTestStore(t, Options{TTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "@agent_alice@k1", []byte("doc")))
	mr.FastForward(2 * time.Minute)

	_, err := s.Load(ctx, "@agent_alice@k1")
	require.ErrorIs(t, err, state.ErrNotFound)
}
