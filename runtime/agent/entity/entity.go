// Package entity implements the actor behind one agent session: the
// Idle -> Processing -> Idle transition that appends a request entry, invokes
// the model with the accumulated history, and appends the correlated response.
//
// The executor owns no durability and no locking. Persistence happens through
// the Context checkpoint callback and mutual exclusion per session is the
// substrate's single-writer guarantee; the executor assumes both.
package entity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/codes"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
	"github.com/durableai/agent-sdk-go/runtime/agent/telemetry"
)

type (
	// Context carries the per-invocation collaborators down the call chain.
	// All state is explicit here; the executor never reads ambient or
	// goroutine-local state.
	Context struct {
		// SessionID identifies the session being executed.
		SessionID session.ID

		// State is the session's envelope. The executor mutates it only
		// through its append operations.
		State *state.State

		// Checkpoint, when non-nil, persists the current state. Called after
		// the request append and after the response append so a crash during
		// the model call leaves a durable response-less request. Substrates
		// with their own checkpointing (durable workflows) leave it nil.
		Checkpoint func(ctx context.Context) error

		// Now supplies entry timestamps. Defaults to time.Now; deterministic
		// substrates inject their replay-safe clock.
		Now func() time.Time
	}

	// Executor runs requests against a session. Safe for concurrent use
	// across sessions; per-session serialization is the substrate's job.
	Executor struct {
		client    model.Client
		streaming bool
		logger    telemetry.Logger
		tracer    telemetry.Tracer
	}

	// Options configures an Executor.
	Options struct {
		// Streaming makes the executor prefer the client's streaming entry
		// point, folding the chunks into one logical response. Clients
		// reporting model.ErrStreamingUnsupported fall back to Complete.
		Streaming bool

		// Logger receives execution events. Defaults to noop.
		Logger telemetry.Logger

		// Tracer wraps each run in a span. Defaults to noop.
		Tracer telemetry.Tracer
	}
)

// SchemaValidationError reports a model response that does not conform to the
// response schema requested by the run.
type SchemaValidationError struct {
	CorrelationID string
	Err           error
}

// Error implements error.
func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("entity: response for %s violates requested schema: %v", e.CorrelationID, e.Err)
}

// Unwrap returns the underlying validation error.
func (e *SchemaValidationError) Unwrap() error { return e.Err }

// New returns an Executor invoking the given model client.
func New(client model.Client, opts Options) (*Executor, error) {
	if client == nil {
		return nil, errors.New("entity: model client is required")
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNoopLogger()
	}
	if opts.Tracer == nil {
		opts.Tracer = telemetry.NewNoopTracer()
	}
	return &Executor{
		client:    client,
		streaming: opts.Streaming,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
	}, nil
}

// Run executes one request against the session state.
//
// Redelivery is idempotent: a request whose correlation id already has a
// committed response is answered from the log without touching the model; a
// pending request (appended but never answered) retries the model call without
// appending a duplicate request entry. Otherwise the request entry is appended
// and checkpointed before the model is invoked, so a failed call leaves a
// durable response-less request and the error propagates unchanged.
func (x *Executor) Run(ctx context.Context, ec *Context, req *api.RunRequest) (*chat.Response, error) {
	if ec == nil || ec.State == nil {
		return nil, errors.New("entity: execution context with state is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := ec.Now
	if now == nil {
		now = time.Now
	}

	ctx, span := x.tracer.Start(ctx, "agent.run")
	defer span.End()

	st := ec.State
	if resp := st.FindResponse(req.CorrelationID); resp != nil {
		x.logger.Debug(ctx, "run already completed, answering from log",
			"session", ec.SessionID.String(), "correlation_id", req.CorrelationID)
		return resp.ToResponse()
	}

	if st.FindRequest(req.CorrelationID) == nil {
		entry := &state.RequestEntry{
			CorrelationID:  req.CorrelationID,
			CreatedAt:      now().UTC(),
			Messages:       req.Messages,
			ResponseType:   req.ResponseType(),
			ResponseSchema: req.ResponseSchema(),
		}
		if err := st.AppendRequest(entry); err != nil {
			return nil, err
		}
		if err := x.checkpoint(ctx, ec); err != nil {
			return nil, err
		}
	} else {
		x.logger.Debug(ctx, "retrying pending run",
			"session", ec.SessionID.String(), "correlation_id", req.CorrelationID)
	}

	history, err := state.ToChatMessages(st.History())
	if err != nil {
		return nil, fmt.Errorf("entity: reconstruct history: %w", err)
	}

	mreq := model.Request{
		Messages:     history,
		ResponseJSON: req.ResponseType() == api.FormatJSON,
		ToolsEnabled: req.ToolsEnabled(),
		ToolNames:    req.EnableToolNames,
	}
	if mreq.ResponseJSON {
		mreq.ResponseSchema = req.ResponseSchema()
	}

	resp, err := x.invoke(ctx, mreq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model invocation failed")
		x.logger.Error(ctx, "model invocation failed",
			"session", ec.SessionID.String(), "correlation_id", req.CorrelationID, "err", err)
		return nil, err
	}

	if schema := req.ResponseSchema(); mreq.ResponseJSON && len(schema) > 0 {
		if err := validateSchema(schema, resp.Text()); err != nil {
			verr := &SchemaValidationError{CorrelationID: req.CorrelationID, Err: err}
			span.RecordError(verr)
			span.SetStatus(codes.Error, "schema validation failed")
			return nil, verr
		}
	}

	entry := &state.ResponseEntry{
		CorrelationID: req.CorrelationID,
		CreatedAt:     now().UTC(),
		Messages:      state.FromChatMessages(resp.Messages),
		Usage:         state.FromChatUsage(resp.Usage),
	}
	if err := st.AppendResponse(entry); err != nil {
		return nil, err
	}
	if err := x.checkpoint(ctx, ec); err != nil {
		return nil, err
	}

	x.logger.Info(ctx, "run completed",
		"session", ec.SessionID.String(), "correlation_id", req.CorrelationID, "entries", st.Len())
	return resp, nil
}

func (x *Executor) invoke(ctx context.Context, req model.Request) (*chat.Response, error) {
	if x.streaming {
		s, err := x.client.Stream(ctx, req)
		switch {
		case err == nil:
			return model.Accumulate(s)
		case errors.Is(err, model.ErrStreamingUnsupported):
			// fall through to Complete
		default:
			return nil, err
		}
	}
	return x.client.Complete(ctx, req)
}

func (x *Executor) checkpoint(ctx context.Context, ec *Context) error {
	if ec.Checkpoint == nil {
		return nil
	}
	if err := ec.Checkpoint(ctx); err != nil {
		return fmt.Errorf("entity: checkpoint: %w", err)
	}
	return nil
}

// validateSchema checks that text parses as JSON and conforms to the given
// JSON schema.
func validateSchema(schema []byte, text string) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", doc); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	compiled, err := compiler.Compile("response.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(text)))
	if err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return compiled.Validate(inst)
}
