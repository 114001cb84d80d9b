package entity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

// fakeModel scripts Complete and records how many times it ran.
type fakeModel struct {
	reply    string
	err      error
	calls    int
	lastSeen []chat.Message
}

func (f *fakeModel) Complete(_ context.Context, req model.Request) (*chat.Response, error) {
	f.calls++
	f.lastSeen = req.Messages
	if f.err != nil {
		return nil, f.err
	}
	return &chat.Response{
		Messages: []chat.Message{chat.NewTextMessage(chat.RoleAssistant, f.reply)},
		Usage:    &chat.UsageDetails{InputTokenCount: chat.Int64(2), OutputTokenCount: chat.Int64(1)},
	}, nil
}

func (f *fakeModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

// chunkModel streams a scripted sequence of chunks.
type chunkModel struct {
	chunks []model.Chunk
}

func (c *chunkModel) Complete(context.Context, model.Request) (*chat.Response, error) {
	return nil, errors.New("complete should not be called")
}

func (c *chunkModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return &sliceStreamer{chunks: c.chunks}, nil
}

type sliceStreamer struct {
	chunks []model.Chunk
	pos    int
}

func (s *sliceStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	ch := s.chunks[s.pos]
	s.pos++
	return ch, nil
}

func (s *sliceStreamer) Close() error { return nil }

func newContext(t *testing.T) *Context {
	t.Helper()
	return &Context{
		SessionID: session.WithKey("alice", "k1"),
		State:     state.New(),
	}
}

func userRequest(text string) *api.RunRequest {
	return api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, text)})
}

func TestRunAppendsRequestAndResponse(t *testing.T) {
	mc := &fakeModel{reply: "hi alice"}
	exec, err := New(mc, Options{})
	require.NoError(t, err)

	ec := newContext(t)
	req := userRequest("hello")
	resp, err := exec.Run(context.Background(), ec, req)
	require.NoError(t, err)
	require.Equal(t, "hi alice", resp.Text())

	require.Equal(t, 2, ec.State.Len())
	require.NotNil(t, ec.State.FindRequest(req.CorrelationID))
	entry := ec.State.FindResponse(req.CorrelationID)
	require.NotNil(t, entry)
	back, err := entry.ToResponse()
	require.NoError(t, err)
	require.Equal(t, "hi alice", back.Text())
	require.Equal(t, int64(2), *entry.Usage.InputTokenCount)
}

func TestRunFailureLeavesPendingRequest(t *testing.T) {
	boom := errors.New("model unavailable")
	mc := &fakeModel{err: boom}
	exec, err := New(mc, Options{})
	require.NoError(t, err)

	ec := newContext(t)
	req := userRequest("hello")
	_, err = exec.Run(context.Background(), ec, req)
	require.ErrorIs(t, err, boom)

	// The request entry stays as a durable record of the failed attempt.
	require.Equal(t, 1, ec.State.Len())
	require.NotNil(t, ec.State.FindRequest(req.CorrelationID))
	require.Nil(t, ec.State.FindResponse(req.CorrelationID))
}

func TestRunRedeliveryIsIdempotent(t *testing.T) {
	mc := &fakeModel{reply: "answer"}
	exec, err := New(mc, Options{})
	require.NoError(t, err)

	ec := newContext(t)
	req := userRequest("question")
	_, err = exec.Run(context.Background(), ec, req)
	require.NoError(t, err)
	require.Equal(t, 1, mc.calls)

	// Redelivering the same request answers from the log without another
	// model call or duplicate entries.
	resp, err := exec.Run(context.Background(), ec, req)
	require.NoError(t, err)
	require.Equal(t, "answer", resp.Text())
	require.Equal(t, 1, mc.calls)
	require.Equal(t, 2, ec.State.Len())
}

func TestRunRetriesPendingRequestWithoutDuplicate(t *testing.T) {
	boom := errors.New("transient")
	mc := &fakeModel{reply: "recovered", err: boom}
	exec, err := New(mc, Options{})
	require.NoError(t, err)

	ec := newContext(t)
	req := userRequest("question")
	_, err = exec.Run(context.Background(), ec, req)
	require.ErrorIs(t, err, boom)

	mc.err = nil
	resp, err := exec.Run(context.Background(), ec, req)
	require.NoError(t, err)
	require.Equal(t, "recovered", resp.Text())
	require.Equal(t, 2, ec.State.Len())
	require.Equal(t, 2, mc.calls)
}

func TestRunSendsFullHistory(t *testing.T) {
	mc := &fakeModel{reply: "r"}
	exec, err := New(mc, Options{})
	require.NoError(t, err)

	ec := newContext(t)
	_, err = exec.Run(context.Background(), ec, userRequest("turn one"))
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), ec, userRequest("turn two"))
	require.NoError(t, err)

	// Second call sees turn one, its response, and turn two.
	require.Len(t, mc.lastSeen, 3)
	require.Equal(t, "turn two", mc.lastSeen[2].Text())
}

func TestRunCheckpointsBeforeModelCall(t *testing.T) {
	boom := errors.New("crash")
	mc := &fakeModel{err: boom}
	exec, err := New(mc, Options{})
	require.NoError(t, err)

	var checkpoints int
	ec := newContext(t)
	ec.Checkpoint = func(context.Context) error {
		checkpoints++
		return nil
	}

	_, err = exec.Run(context.Background(), ec, userRequest("hello"))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, checkpoints)
}

func TestRunValidatesResponseSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`)

	t.Run("conforming response", func(t *testing.T) {
		mc := &fakeModel{reply: `{"name":"alice"}`}
		exec, err := New(mc, Options{})
		require.NoError(t, err)

		ec := newContext(t)
		req := userRequest("who")
		req.Format = api.JSONFormat(schema)
		resp, err := exec.Run(context.Background(), ec, req)
		require.NoError(t, err)
		require.JSONEq(t, `{"name":"alice"}`, resp.Text())
	})

	t.Run("violating response", func(t *testing.T) {
		mc := &fakeModel{reply: `{"age":7}`}
		exec, err := New(mc, Options{})
		require.NoError(t, err)

		ec := newContext(t)
		req := userRequest("who")
		req.Format = api.JSONFormat(schema)
		_, err = exec.Run(context.Background(), ec, req)

		var verr *SchemaValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, req.CorrelationID, verr.CorrelationID)
		// No response entry for a rejected payload.
		require.Nil(t, ec.State.FindResponse(req.CorrelationID))
	})
}

func TestRunAccumulatesStream(t *testing.T) {
	mc := &chunkModel{chunks: []model.Chunk{
		{Kind: model.ChunkText, Text: "hel"},
		{Kind: model.ChunkText, Text: "lo"},
		{Kind: model.ChunkUsage, Usage: &chat.UsageDetails{OutputTokenCount: chat.Int64(2)}},
	}}
	exec, err := New(mc, Options{Streaming: true})
	require.NoError(t, err)

	ec := newContext(t)
	resp, err := exec.Run(context.Background(), ec, userRequest("hi"))
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text())
	require.Equal(t, int64(2), *resp.Usage.OutputTokenCount)
}
