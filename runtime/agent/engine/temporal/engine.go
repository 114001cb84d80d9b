// Package temporal implements the engine driver on Temporal. Each agent
// session is one long-lived workflow whose ID is the session's canonical
// string form: signal-with-start delivers run requests, a query handler
// exposes the encoded state envelope, and the model call runs inside an
// activity. Durability and single-writer-per-session discipline come from
// Temporal itself.
package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/engine"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/telemetry"
)

// SessionWorkflowName is the registered name of the session entity workflow.
const SessionWorkflowName = "agentSession"

type (
	// Options configures the Temporal engine. Either a pre-configured Client
	// or ClientOptions must be provided; when ClientOptions is used the
	// engine creates a lazy client and wires OTEL tracing automatically.
	Options struct {
		// Client is an optional pre-configured Temporal client. Provide one
		// when you need custom interceptors or connection pooling.
		Client client.Client

		// ClientOptions describe how to construct the client when Client is
		// nil. Only connection fields (HostPort, Namespace, ...) need to be
		// set; the OTEL tracing interceptor is installed automatically.
		ClientOptions *client.Options

		// TaskQueue is the queue session workflows and model activities run
		// on. Required.
		TaskQueue string

		// WorkerOptions are forwarded to worker.New by NewWorker.
		WorkerOptions worker.Options

		// DisableTracing skips the OTEL tracing interceptor.
		DisableTracing bool

		// TracerOptions customize the OTEL interceptor when tracing is on.
		TracerOptions temporalotel.TracerOptions

		// Logger receives engine events. Defaults to noop.
		Logger telemetry.Logger
	}

	// Engine implements engine.Engine on a Temporal client.
	Engine struct {
		client      client.Client
		closeClient bool
		taskQueue   string
		workerOpts  worker.Options
		logger      telemetry.Logger
	}
)

// New constructs the engine.
func New(opts Options) (*Engine, error) {
	if opts.TaskQueue == "" {
		return nil, errors.New("temporal: task queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}

	cli := opts.Client
	closeClient := false
	if cli == nil {
		if opts.ClientOptions == nil {
			return nil, errors.New("temporal: client options are required when Client is nil")
		}
		clientOpts := *opts.ClientOptions
		if !opts.DisableTracing {
			tracer, err := temporalotel.NewTracingInterceptor(opts.TracerOptions)
			if err != nil {
				return nil, fmt.Errorf("temporal: create tracing interceptor: %w", err)
			}
			clientOpts.Interceptors = append(clientOpts.Interceptors, interceptor.ClientInterceptor(tracer))
		}
		var err error
		cli, err = client.NewLazyClient(clientOpts)
		if err != nil {
			return nil, fmt.Errorf("temporal: create client: %w", err)
		}
		closeClient = true
	}

	return &Engine{
		client:      cli,
		closeClient: closeClient,
		taskQueue:   opts.TaskQueue,
		workerOpts:  opts.WorkerOptions,
		logger:      logger,
	}, nil
}

// NewWorker creates a worker on the engine's task queue with the session
// workflow and the model activity registered. The caller owns the worker
// lifecycle (Run/Start/Stop). The model client executes inside the activity;
// wf tunes the workflow side.
func (e *Engine) NewWorker(mc model.Client, wf WorkflowOptions) (worker.Worker, error) {
	if mc == nil {
		return nil, errors.New("temporal: model client is required")
	}
	wf.applyDefaults()
	w := worker.New(e.client, e.taskQueue, e.workerOpts)
	wfs := &workflows{opts: wf}
	w.RegisterWorkflowWithOptions(wfs.SessionWorkflow, workflow.RegisterOptions{Name: SessionWorkflowName})
	w.RegisterActivity(&Activities{client: mc, streaming: wf.Streaming})
	return w, nil
}

// SignalRun delivers the request to the session workflow, starting it on
// first contact. Signal-with-start makes delivery and entity creation one
// atomic operation, so callers never race session materialization.
func (e *Engine) SignalRun(ctx context.Context, id session.ID, req *api.RunRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	_, err := e.client.SignalWithStartWorkflow(ctx, id.String(), api.RunSignalName, req,
		client.StartWorkflowOptions{
			ID:        id.String(),
			TaskQueue: e.taskQueue,
		},
		SessionWorkflowName, SessionInput{})
	if err != nil {
		return fmt.Errorf("temporal: signal run: %w", err)
	}
	return nil
}

// ReadState queries the session workflow for its encoded state envelope.
func (e *Engine) ReadState(ctx context.Context, id session.ID) ([]byte, error) {
	val, err := e.client.QueryWorkflow(ctx, id.String(), "", api.StateQueryName)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %s", engine.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("temporal: query state: %w", err)
	}
	var doc []byte
	if err := val.Get(&doc); err != nil {
		return nil, fmt.Errorf("temporal: decode state query result: %w", err)
	}
	return doc, nil
}

// Close releases the client when the engine created it.
func (e *Engine) Close() {
	if e.closeClient {
		e.client.Close()
	}
}

// NewSessionID builds a session id inside workflow code. The key comes from a
// side effect so the same identifier is produced on replay.
func NewSessionID(wctx workflow.Context, name string) (session.ID, error) {
	var key string
	if err := workflow.SideEffect(wctx, func(workflow.Context) any {
		return newRandomKey()
	}).Get(&key); err != nil {
		return session.ID{}, fmt.Errorf("temporal: derive session key: %w", err)
	}
	return session.WithKey(name, key), nil
}
