// Package proxy exposes the caller-facing agent façade. Two variants exist:
// Local executes the session entity in-process and blocks for the full model
// call; Durable delivers the run to a substrate-backed entity as a signal and
// polls the persisted session state for the correlated response.
package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/engine"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
)

// Errors reported by the façade variants for structurally unsupported calls.
var (
	// ErrStreamingNotSupported is returned by the durable variant's streaming
	// entry point. The signal+poll transport delivers only a final persisted
	// response, never intermediate tokens.
	ErrStreamingNotSupported = errors.New("proxy: streaming is not supported over signal and poll")

	// ErrCancellationNotSupported is returned by the local variant when given
	// a cancellable context. The in-process entity call cannot be
	// cooperatively cancelled once dispatched; passing a cancellable context
	// would promise a cancellation that cannot be honored.
	ErrCancellationNotSupported = errors.New("proxy: cancellable context not supported on the local variant")
)

type (
	// Agent is the façade callers program against.
	Agent interface {
		// Run submits the messages to the session and returns the response.
		Run(ctx context.Context, id session.ID, messages []chat.Message, opts *RunOptions) (*chat.Response, error)

		// RunStream is the streaming entry point. Variants that cannot
		// stream fail fast with ErrStreamingNotSupported.
		RunStream(ctx context.Context, id session.ID, messages []chat.Message, opts *RunOptions) (model.Streamer, error)
	}

	// RunOptions tunes one run.
	RunOptions struct {
		// Format constrains the response shape. Nil means text.
		Format *api.ResponseFormat

		// DisableToolCalls turns tool use off for this run.
		DisableToolCalls bool

		// ToolNames restricts the callable tools when non-empty.
		ToolNames []string
	}

	// Local executes runs synchronously through an in-process engine.
	Local struct {
		caller engine.Caller
	}

	// Durable delivers runs as signals and polls for responses.
	Durable struct {
		eng  engine.Engine
		poll PollOptions
	}
)

// NewLocal returns the synchronous in-process variant.
func NewLocal(caller engine.Caller) (*Local, error) {
	if caller == nil {
		return nil, errors.New("proxy: caller is required")
	}
	return &Local{caller: caller}, nil
}

// NewDurable returns the signal+poll variant. poll zero values take the
// package defaults.
func NewDurable(eng engine.Engine, poll PollOptions) (*Durable, error) {
	if eng == nil {
		return nil, errors.New("proxy: engine is required")
	}
	poll.applyDefaults()
	return &Durable{eng: eng, poll: poll}, nil
}

// Run invokes the session entity in-process and blocks for the full duration
// of the model call. The context must not be cancellable: cancelling the
// caller's wait would not cancel the dispatched work, so a cancellable
// context is rejected up front rather than silently ignored.
func (l *Local) Run(ctx context.Context, id session.ID, messages []chat.Message, opts *RunOptions) (*chat.Response, error) {
	if ctx.Done() != nil {
		return nil, ErrCancellationNotSupported
	}
	return l.caller.CallRun(ctx, id, buildRequest(messages, opts))
}

// RunStream runs synchronously and replays the finished response as a stream.
func (l *Local) RunStream(ctx context.Context, id session.ID, messages []chat.Message, opts *RunOptions) (model.Streamer, error) {
	resp, err := l.Run(ctx, id, messages, opts)
	if err != nil {
		return nil, err
	}
	return newReplayStreamer(resp), nil
}

// Run signals the session entity and polls its persisted state until the
// correlated response appears. Cancellation is honored on the waiting side
// only: cancelling stops the polling, not the entity's in-flight work.
func (d *Durable) Run(ctx context.Context, id session.ID, messages []chat.Message, opts *RunOptions) (*chat.Response, error) {
	handle, err := d.Signal(ctx, id, messages, opts)
	if err != nil {
		return nil, err
	}
	return d.ReadResponse(ctx, handle)
}

// RunStream fails fast; see ErrStreamingNotSupported.
func (d *Durable) RunStream(context.Context, session.ID, []chat.Message, *RunOptions) (model.Streamer, error) {
	return nil, ErrStreamingNotSupported
}

// Signal delivers the run and returns immediately with a handle for polling.
// Fire-and-forget callers keep the handle without ever reading it.
func (d *Durable) Signal(ctx context.Context, id session.ID, messages []chat.Message, opts *RunOptions) (api.Handle, error) {
	req := buildRequest(messages, opts)
	if err := d.eng.SignalRun(ctx, id, req); err != nil {
		return api.Handle{}, fmt.Errorf("proxy: signal run: %w", err)
	}
	return api.Handle{SessionID: id, CorrelationID: req.CorrelationID}, nil
}

// ReadResponse polls the session state for the handle's response.
func (d *Durable) ReadResponse(ctx context.Context, handle api.Handle) (*chat.Response, error) {
	return readResponse(ctx, d.eng, handle, d.poll)
}

func buildRequest(messages []chat.Message, opts *RunOptions) *api.RunRequest {
	req := api.NewRunRequest(messages)
	if opts == nil {
		return req
	}
	req.Format = opts.Format
	if opts.DisableToolCalls {
		f := false
		req.EnableToolCalls = &f
	}
	req.EnableToolNames = opts.ToolNames
	return req
}
