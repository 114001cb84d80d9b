// Package inmem provides the in-process engine driver. Each session gets a
// single-writer mailbox goroutine so concurrent submissions to one session are
// serialized while distinct sessions proceed in parallel, matching the
// single-writer-per-instance discipline a durable substrate would enforce.
package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/engine"
	"github.com/durableai/agent-sdk-go/runtime/agent/entity"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
	stateinmem "github.com/durableai/agent-sdk-go/runtime/agent/state/inmem"
	"github.com/durableai/agent-sdk-go/runtime/agent/telemetry"
)

const mailboxDepth = 64

type (
	// Engine drives session entities in-process.
	Engine struct {
		exec   *entity.Executor
		store  state.Store
		logger telemetry.Logger

		mu        sync.Mutex
		mailboxes map[string]*mailbox
		closed    bool
		wg        sync.WaitGroup
	}

	// Options configures an Engine.
	Options struct {
		// Store persists session envelopes. Defaults to an in-memory store.
		Store state.Store

		// Logger receives engine events. Defaults to noop.
		Logger telemetry.Logger
	}

	mailbox struct {
		jobs chan job
	}

	job struct {
		ctx  context.Context
		id   session.ID
		req  *api.RunRequest
		done chan result
	}

	result struct {
		resp *chat.Response
		err  error
	}
)

// New returns an Engine executing runs with the given executor.
func New(exec *entity.Executor, opts Options) (*Engine, error) {
	if exec == nil {
		return nil, errors.New("inmem: executor is required")
	}
	if opts.Store == nil {
		opts.Store = stateinmem.New()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	return &Engine{
		exec:      exec,
		store:     opts.Store,
		logger:    opts.Logger,
		mailboxes: make(map[string]*mailbox),
	}, nil
}

// SignalRun enqueues the request on the session's mailbox and returns without
// waiting for execution. The dispatched work is detached from the caller's
// cancellation, mirroring signal semantics on a durable substrate.
func (e *Engine) SignalRun(ctx context.Context, id session.ID, req *api.RunRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	mb, err := e.mailboxFor(id)
	if err != nil {
		return err
	}
	j := job{ctx: context.WithoutCancel(ctx), id: id, req: req}
	select {
	case mb.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CallRun enqueues the request and blocks until the session's writer executes
// it, returning the response.
func (e *Engine) CallRun(ctx context.Context, id session.ID, req *api.RunRequest) (*chat.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	mb, err := e.mailboxFor(id)
	if err != nil {
		return nil, err
	}
	j := job{ctx: ctx, id: id, req: req, done: make(chan result, 1)}
	select {
	case mb.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-j.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ReadState returns the session's persisted envelope.
func (e *Engine) ReadState(ctx context.Context, id session.ID) ([]byte, error) {
	doc, err := e.store.Load(ctx, id.String())
	if errors.Is(err, state.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", engine.ErrSessionNotFound, id)
	}
	return doc, err
}

// Close stops the session writers after draining their mailboxes. Pending
// synchronous callers receive their results before Close returns.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, mb := range e.mailboxes {
		close(mb.jobs)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Engine) mailboxFor(id session.ID) (*mailbox, error) {
	key := id.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("inmem: engine closed")
	}
	mb, ok := e.mailboxes[key]
	if !ok {
		mb = &mailbox{jobs: make(chan job, mailboxDepth)}
		e.mailboxes[key] = mb
		e.wg.Add(1)
		go e.serve(mb)
	}
	return mb, nil
}

// serve is the session's single writer: it executes mailbox jobs one at a
// time in arrival order.
func (e *Engine) serve(mb *mailbox) {
	defer e.wg.Done()
	for j := range mb.jobs {
		resp, err := e.run(j.ctx, j.id, j.req)
		if j.done != nil {
			j.done <- result{resp: resp, err: err}
			continue
		}
		if err != nil {
			e.logger.Error(j.ctx, "signaled run failed",
				"session", j.id.String(), "correlation_id", j.req.CorrelationID, "err", err)
		}
	}
}

func (e *Engine) run(ctx context.Context, id session.ID, req *api.RunRequest) (*chat.Response, error) {
	st, err := e.loadState(ctx, id)
	if err != nil {
		return nil, err
	}
	ec := &entity.Context{
		SessionID: id,
		State:     st,
		Checkpoint: func(ctx context.Context) error {
			doc, err := st.Encode()
			if err != nil {
				return err
			}
			return e.store.Save(ctx, id.String(), doc)
		},
	}
	return e.exec.Run(ctx, ec, req)
}

func (e *Engine) loadState(ctx context.Context, id session.ID) (*state.State, error) {
	doc, err := e.store.Load(ctx, id.String())
	switch {
	case errors.Is(err, state.ErrNotFound):
		return state.New(), nil
	case err != nil:
		return nil, fmt.Errorf("inmem: load state: %w", err)
	}
	return state.Decode(doc)
}
