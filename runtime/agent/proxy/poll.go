package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/engine"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

// Default poll backoff. The first read happens before any sleep so a response
// that is already persisted returns immediately.
const (
	defaultPollInitial = 50 * time.Millisecond
	defaultPollMax     = 3 * time.Second
)

// ErrPollTimeout is returned when PollOptions.MaxElapsed passes without a
// response. The dispatched run keeps executing; only the wait ends.
var ErrPollTimeout = errors.New("proxy: poll ceiling elapsed without a response")

// PollOptions tunes the response poller.
type PollOptions struct {
	// Initial is the first sleep interval. Defaults to 50ms.
	Initial time.Duration

	// Max caps the interval as it doubles. Defaults to 3s.
	Max time.Duration

	// MaxElapsed bounds the total wait. Zero means unbounded; cancellation
	// through the context is then the only way to stop waiting.
	MaxElapsed time.Duration
}

func (o *PollOptions) applyDefaults() {
	if o.Initial <= 0 {
		o.Initial = defaultPollInitial
	}
	if o.Max <= 0 {
		o.Max = defaultPollMax
	}
}

// readResponse polls the reader until a response entry matching the handle's
// correlation id appears in the session log. A missing session counts as "not
// ready": the signal may still be materializing the entity.
func readResponse(ctx context.Context, reader engine.StateReader, handle api.Handle, opts PollOptions) (*chat.Response, error) {
	opts.applyDefaults()

	var deadline time.Time
	if opts.MaxElapsed > 0 {
		deadline = time.Now().Add(opts.MaxElapsed)
	}

	interval := opts.Initial
	for {
		resp, err := readOnce(ctx, reader, handle)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrPollTimeout, handle.CorrelationID)
		}

		if err := pollSleep(ctx, interval); err != nil {
			return nil, err
		}
		interval *= 2
		if interval > opts.Max {
			interval = opts.Max
		}
	}
}

// pollSleep waits out one backoff interval or returns early when ctx is done.
// A variable so tests can observe the interval sequence without real sleeps.
var pollSleep = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// readOnce performs one state read. Returns (nil, nil) when the response is
// not yet available.
func readOnce(ctx context.Context, reader engine.StateReader, handle api.Handle) (*chat.Response, error) {
	doc, err := reader.ReadState(ctx, handle.SessionID)
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("proxy: read state: %w", err)
	}

	st, err := state.Decode(doc)
	if err != nil {
		return nil, fmt.Errorf("proxy: decode state: %w", err)
	}
	entry := st.FindResponse(handle.CorrelationID)
	if entry == nil {
		return nil, nil
	}
	resp, err := entry.ToResponse()
	if err != nil {
		return nil, fmt.Errorf("proxy: reconstruct response: %w", err)
	}
	return resp, nil
}

// replayStreamer adapts a finished response to the Streamer interface for the
// local variant's streaming entry point.
type replayStreamer struct {
	chunks []model.Chunk
	pos    int
}

func newReplayStreamer(resp *chat.Response) *replayStreamer {
	var chunks []model.Chunk
	for _, m := range resp.Messages {
		for _, c := range m.Contents {
			if t, ok := c.(*chat.TextContent); ok {
				chunks = append(chunks, model.Chunk{Kind: model.ChunkText, Text: t.Text})
				continue
			}
			chunks = append(chunks, model.Chunk{Kind: model.ChunkContent, Content: c})
		}
	}
	if resp.Usage != nil {
		u := *resp.Usage
		chunks = append(chunks, model.Chunk{Kind: model.ChunkUsage, Usage: &u})
	}
	return &replayStreamer{chunks: chunks}
}

// Recv returns the next chunk or io.EOF.
func (s *replayStreamer) Recv() (model.Chunk, error) {
	if s.pos >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// Close is a no-op.
func (s *replayStreamer) Close() error { return nil }
