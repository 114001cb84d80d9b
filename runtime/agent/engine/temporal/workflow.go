package temporal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/entity"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

type (
	// SessionInput starts or resumes a session workflow. StateDoc carries the
	// encoded envelope across continue-as-new; empty on first start.
	SessionInput struct {
		StateDoc []byte
	}

	// WorkflowOptions tunes the session workflow.
	WorkflowOptions struct {
		// ModelTimeout bounds one model activity attempt. Defaults to 5m.
		ModelTimeout time.Duration

		// MaxRunsPerExecution forces continue-as-new after this many runs
		// even when the server has not suggested it. Defaults to 500.
		MaxRunsPerExecution int

		// ModelMaxAttempts bounds activity retries for one model call.
		// Defaults to 3. After the final attempt the request stays
		// response-less in the log.
		ModelMaxAttempts int

		// Streaming makes the model activity use the client's streaming
		// entry point, accumulating chunks before returning.
		Streaming bool
	}

	workflows struct {
		opts WorkflowOptions
	}
)

func (o *WorkflowOptions) applyDefaults() {
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = 5 * time.Minute
	}
	if o.MaxRunsPerExecution <= 0 {
		o.MaxRunsPerExecution = 500
	}
	if o.ModelMaxAttempts <= 0 {
		o.ModelMaxAttempts = 3
	}
}

// SessionWorkflow is the long-lived entity behind one agent session. It
// receives run requests over the run signal channel, executes them one at a
// time through the entity executor, and answers state queries with the
// encoded envelope. History growth is bounded by continue-as-new; the
// envelope rides along as the next execution's input.
func (w *workflows) SessionWorkflow(wctx workflow.Context, input SessionInput) error {
	logger := workflow.GetLogger(wctx)

	var st *state.State
	if len(input.StateDoc) == 0 {
		st = state.New()
	} else {
		var err error
		st, err = state.Decode(input.StateDoc)
		if err != nil {
			return err
		}
	}

	id, err := session.Parse(workflow.GetInfo(wctx).WorkflowExecution.ID)
	if err != nil {
		return err
	}

	if err := workflow.SetQueryHandler(wctx, api.StateQueryName, func() ([]byte, error) {
		return st.Encode()
	}); err != nil {
		return err
	}

	exec, err := entity.New(&activityClient{
		wctx:        wctx,
		timeout:     w.opts.ModelTimeout,
		maxAttempts: w.opts.ModelMaxAttempts,
	}, entity.Options{})
	if err != nil {
		return err
	}
	ec := &entity.Context{
		SessionID: id,
		State:     st,
		// Checkpoint stays nil: workflow state is durable through Temporal's
		// own event-sourced persistence.
		Now: func() time.Time { return workflow.Now(wctx) },
	}

	sigCh := workflow.GetSignalChannel(wctx, api.RunSignalName)
	runs := 0
	for runs < w.opts.MaxRunsPerExecution {
		var req api.RunRequest
		sigCh.Receive(wctx, &req)

		// Failures stay in the loop: the request entry remains response-less
		// in the log and the entity keeps serving subsequent runs.
		if _, err := exec.Run(context.Background(), ec, &req); err != nil {
			logger.Error("agent run failed", "session", id.String(),
				"correlation_id", req.CorrelationID, "error", err)
		}
		runs++

		if workflow.GetInfo(wctx).GetContinueAsNewSuggested() {
			break
		}
	}

	// Drain requests signaled while the last run executed before handing the
	// log to the next execution.
	for {
		var req api.RunRequest
		if !sigCh.ReceiveAsync(&req) {
			break
		}
		if _, err := exec.Run(context.Background(), ec, &req); err != nil {
			logger.Error("agent run failed", "session", id.String(),
				"correlation_id", req.CorrelationID, "error", err)
		}
	}

	doc, err := st.Encode()
	if err != nil {
		return err
	}
	return workflow.NewContinueAsNewError(wctx, SessionWorkflowName, SessionInput{StateDoc: doc})
}

// activityClient satisfies model.Client inside workflow code by delegating
// the call to the model activity. Streaming happens, if at all, inside the
// activity; the workflow only ever sees the accumulated response.
type activityClient struct {
	wctx        workflow.Context
	timeout     time.Duration
	maxAttempts int
}

// Complete executes the model activity and reconstructs the response.
func (c *activityClient) Complete(_ context.Context, req model.Request) (*chat.Response, error) {
	actx := workflow.WithActivityOptions(c.wctx, workflow.ActivityOptions{
		StartToCloseTimeout: c.timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: int32(c.maxAttempts)},
	})
	input := RunModelInput{
		Messages:       state.FromChatMessages(req.Messages),
		ResponseJSON:   req.ResponseJSON,
		ResponseSchema: req.ResponseSchema,
		ToolsEnabled:   req.ToolsEnabled,
		ToolNames:      req.ToolNames,
	}
	var out RunModelResult
	if err := workflow.ExecuteActivity(actx, RunModelActivityName, input).Get(c.wctx, &out); err != nil {
		return nil, err
	}
	return out.toResponse()
}

// Stream is unsupported in workflow code.
func (c *activityClient) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func newRandomKey() string { return uuid.NewString() }
