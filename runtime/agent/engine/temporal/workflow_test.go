package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/durableai/agent-sdk-go/runtime/agent/api"
	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

type scriptedModel struct {
	reply string
	err   error
}

func (m *scriptedModel) Complete(context.Context, model.Request) (*chat.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &chat.Response{
		Messages: []chat.Message{chat.NewTextMessage(chat.RoleAssistant, m.reply)},
		Usage:    &chat.UsageDetails{InputTokenCount: chat.Int64(5), OutputTokenCount: chat.Int64(2)},
	}, nil
}

func (m *scriptedModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func newTestEnv(t *testing.T, mc model.Client, opts WorkflowOptions) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	opts.applyDefaults()
	wfs := &workflows{opts: opts}
	env.RegisterWorkflowWithOptions(wfs.SessionWorkflow, workflow.RegisterOptions{Name: SessionWorkflowName})
	env.RegisterActivity(NewActivities(mc, opts.Streaming))
	return env
}

func queryState(t *testing.T, env *testsuite.TestWorkflowEnvironment) *state.State {
	t.Helper()
	val, err := env.QueryWorkflow(api.StateQueryName)
	require.NoError(t, err)
	var doc []byte
	require.NoError(t, val.Get(&doc))
	st, err := state.Decode(doc)
	require.NoError(t, err)
	return st
}

func TestSessionWorkflowProcessesRun(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{reply: "bonjour"}, WorkflowOptions{MaxRunsPerExecution: 1})

	id := session.WithKey("alice", "k1")
	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: id.String()})

	req := api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "hello")})
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(api.RunSignalName, req)
	}, 0)

	env.ExecuteWorkflow(SessionWorkflowName, SessionInput{})
	require.True(t, env.IsWorkflowCompleted())

	// The execution hands the log to its successor via continue-as-new.
	err := env.GetWorkflowError()
	require.Error(t, err)
	var canErr *workflow.ContinueAsNewError
	require.ErrorAs(t, err, &canErr)

	st := queryState(t, env)
	require.Equal(t, 2, st.Len())
	entry := st.FindResponse(req.CorrelationID)
	require.NotNil(t, entry)
	resp, err := entry.ToResponse()
	require.NoError(t, err)
	require.Equal(t, "bonjour", resp.Text())
	require.Equal(t, int64(5), *entry.Usage.InputTokenCount)
}

func TestSessionWorkflowResumesFromCarriedState(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{reply: "again"}, WorkflowOptions{MaxRunsPerExecution: 1})

	prior := state.New()
	require.NoError(t, prior.AppendRequest(&state.RequestEntry{
		CorrelationID: "c-prior",
		Messages:      state.FromChatMessages([]chat.Message{chat.NewTextMessage(chat.RoleUser, "old turn")}),
		ResponseType:  state.ResponseTypeText,
	}))
	require.NoError(t, prior.AppendResponse(&state.ResponseEntry{
		CorrelationID: "c-prior",
		Messages:      state.FromChatMessages([]chat.Message{chat.NewTextMessage(chat.RoleAssistant, "old answer")}),
	}))
	doc, err := prior.Encode()
	require.NoError(t, err)

	id := session.WithKey("alice", "k1")
	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: id.String()})

	req := api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "new turn")})
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(api.RunSignalName, req)
	}, 0)

	env.ExecuteWorkflow(SessionWorkflowName, SessionInput{StateDoc: doc})
	require.True(t, env.IsWorkflowCompleted())

	st := queryState(t, env)
	require.Equal(t, 4, st.Len())
	require.NotNil(t, st.FindResponse("c-prior"))
	require.NotNil(t, st.FindResponse(req.CorrelationID))
}

func TestSessionWorkflowSurvivesModelFailure(t *testing.T) {
	env := newTestEnv(t, &scriptedModel{err: errors.New("provider down")}, WorkflowOptions{MaxRunsPerExecution: 1})

	id := session.WithKey("alice", "k1")
	env.SetStartWorkflowOptions(client.StartWorkflowOptions{ID: id.String()})

	req := api.NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "hello")})
	env.RegisterDelayedCallback(func() {
		env.SignalWorkflow(api.RunSignalName, req)
	}, 0)

	env.ExecuteWorkflow(SessionWorkflowName, SessionInput{})
	require.True(t, env.IsWorkflowCompleted())

	// The workflow does not fail; the request stays response-less in the log.
	var canErr *workflow.ContinueAsNewError
	require.ErrorAs(t, env.GetWorkflowError(), &canErr)

	st := queryState(t, env)
	require.Equal(t, 1, st.Len())
	require.NotNil(t, st.FindRequest(req.CorrelationID))
	require.Nil(t, st.FindResponse(req.CorrelationID))
}

func TestNewSessionIDIsReplayDeterministic(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	wf := func(wctx workflow.Context) (string, error) {
		id, err := NewSessionID(wctx, "Orchestrated")
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}
	env.RegisterWorkflow(wf)

	env.ExecuteWorkflow(wf)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got string
	require.NoError(t, env.GetWorkflowResult(&got))
	id, err := session.Parse(got)
	require.NoError(t, err)
	require.Equal(t, "orchestrated", id.Name)
	require.NotEmpty(t, id.Key)
}
