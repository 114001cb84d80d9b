package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

// RunModelActivityName is the registered name of the model activity. Matches
// the method name Temporal derives from the Activities receiver.
const RunModelActivityName = "RunModel"

type (
	// Activities hosts the non-deterministic side of the session workflow.
	Activities struct {
		client    model.Client
		streaming bool
	}

	// RunModelInput is the serializable model request. Messages travel in
	// wire form so activity payloads share the state codec.
	RunModelInput struct {
		Messages       []state.Message `json:"messages"`
		ResponseJSON   bool            `json:"responseJson"`
		ResponseSchema json.RawMessage `json:"responseSchema,omitempty"`
		ToolsEnabled   bool            `json:"toolsEnabled"`
		ToolNames      []string        `json:"toolNames,omitempty"`
	}

	// RunModelResult is the serializable model response.
	RunModelResult struct {
		Messages []state.Message     `json:"messages"`
		Usage    *state.UsageDetails `json:"usage,omitempty"`
	}
)

// NewActivities constructs the activity set for manual registration.
func NewActivities(client model.Client, streaming bool) *Activities {
	return &Activities{client: client, streaming: streaming}
}

// RunModel invokes the model client with the accumulated history and returns
// the finished response. When streaming is configured the chunks are folded
// here, inside the activity, so the workflow still receives one result.
func (a *Activities) RunModel(ctx context.Context, input RunModelInput) (RunModelResult, error) {
	messages, err := state.ToChatMessages(input.Messages)
	if err != nil {
		return RunModelResult{}, fmt.Errorf("temporal: reconstruct messages: %w", err)
	}
	req := model.Request{
		Messages:       messages,
		ResponseJSON:   input.ResponseJSON,
		ResponseSchema: input.ResponseSchema,
		ToolsEnabled:   input.ToolsEnabled,
		ToolNames:      input.ToolNames,
	}

	var resp *chat.Response
	if a.streaming {
		s, serr := a.client.Stream(ctx, req)
		switch {
		case serr == nil:
			resp, err = model.Accumulate(s)
		case errors.Is(serr, model.ErrStreamingUnsupported):
			resp, err = a.client.Complete(ctx, req)
		default:
			return RunModelResult{}, serr
		}
	} else {
		resp, err = a.client.Complete(ctx, req)
	}
	if err != nil {
		return RunModelResult{}, err
	}

	return RunModelResult{
		Messages: state.FromChatMessages(resp.Messages),
		Usage:    state.FromChatUsage(resp.Usage),
	}, nil
}

func (r RunModelResult) toResponse() (*chat.Response, error) {
	messages, err := state.ToChatMessages(r.Messages)
	if err != nil {
		return nil, err
	}
	resp := &chat.Response{Messages: messages}
	if r.Usage != nil {
		u := r.Usage.ToChat()
		resp.Usage = &u
	}
	return resp, nil
}
