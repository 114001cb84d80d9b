package inmem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/engine"
	"github.com/durableai/agent-sdk-go/runtime/agent/entity"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

// echoModel answers with the last user message, optionally after a delay.
type echoModel struct {
	delay time.Duration

	mu       sync.Mutex
	inFlight int
	maxSeen  int
}

func (m *echoModel) Complete(_ context.Context, req model.Request) (*chat.Response, error) {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()

	last := req.Messages[len(req.Messages)-1].Text()
	return &chat.Response{
		Messages: []chat.Message{chat.NewTextMessage(chat.RoleAssistant, "echo: "+last)},
	}, nil
}

func (m *echoModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func newEngine(t *testing.T, mc model.Client) *Engine {
	t.Helper()
	exec, err := entity.New(mc, entity.Options{})
	require.NoError(t, err)
	eng, err := New(exec, Options{})
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func userMessages(text string) []state.Message {
	return state.FromChatMessages([]chat.Message{chat.NewTextMessage(chat.RoleUser, text)})
}

func TestCallRunExecutesSynchronously(t *testing.T) {
	eng := newEngine(t, &echoModel{})
	id := session.WithKey("alice", "k1")

	req := api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "hello")})
	resp, err := eng.CallRun(context.Background(), id, req)
	require.NoError(t, err)
	require.Equal(t, "echo: hello", resp.Text())

	doc, err := eng.ReadState(context.Background(), id)
	require.NoError(t, err)
	st, err := state.Decode(doc)
	require.NoError(t, err)
	require.Equal(t, 2, st.Len())
	require.NotNil(t, st.FindResponse(req.CorrelationID))
}

func TestSignalRunIsAsynchronous(t *testing.T) {
	eng := newEngine(t, &echoModel{delay: 20 * time.Millisecond})
	id := session.WithKey("alice", "k1")

	req := api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "hi")})
	require.NoError(t, eng.SignalRun(context.Background(), id, req))

	// The response appears in persisted state once the writer commits it.
	require.Eventually(t, func() bool {
		doc, err := eng.ReadState(context.Background(), id)
		if err != nil {
			return false
		}
		st, err := state.Decode(doc)
		if err != nil {
			return false
		}
		return st.FindResponse(req.CorrelationID) != nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReadStateUnknownSession(t *testing.T) {
	eng := newEngine(t, &echoModel{})

	_, err := eng.ReadState(context.Background(), session.WithKey("ghost", "k"))
	require.ErrorIs(t, err, engine.ErrSessionNotFound)
}

func TestSameSessionRunsAreSerialized(t *testing.T) {
	mc := &echoModel{delay: 10 * time.Millisecond}
	eng := newEngine(t, mc)
	id := session.WithKey("alice", "k1")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "m")})
			_, err := eng.CallRun(context.Background(), id, req)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	require.Equal(t, 1, mc.maxSeen)
}

func TestDistinctSessionsRunInParallel(t *testing.T) {
	mc := &echoModel{delay: 30 * time.Millisecond}
	eng := newEngine(t, mc)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := session.New("worker")
			req := api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "m")})
			_, err := eng.CallRun(context.Background(), id, req)
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	require.Greater(t, mc.maxSeen, 1)
}

func TestSignalRunValidatesRequest(t *testing.T) {
	eng := newEngine(t, &echoModel{})
	id := session.WithKey("alice", "k1")

	req := &api.RunRequest{Messages: userMessages("hi")}
	require.Error(t, eng.SignalRun(context.Background(), id, req))
}
