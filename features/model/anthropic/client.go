// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API. It translates agent requests into
// anthropic.Message calls using github.com/anthropics/anthropic-sdk-go and
// maps responses (text, tool use, thinking, usage) back into the runtime chat
// structures.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
)

const defaultMaxTokens = 4096

type (
	// MessagesClient captures the subset of the Anthropic SDK client used by
	// the adapter. It is satisfied by *sdk.MessageService so callers can pass
	// either a real client or a mock in tests.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
		NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
	}

	// Options configures the adapter.
	Options struct {
		// Model is the Claude model identifier. Required. Use the typed model
		// constants from github.com/anthropics/anthropic-sdk-go.
		Model string

		// MaxTokens caps the completion length. Defaults to 4096.
		MaxTokens int

		// Temperature is forwarded when positive.
		Temperature float64
	}

	// Client implements model.Client on top of Anthropic Claude Messages.
	Client struct {
		msg       MessagesClient
		model     string
		maxTokens int
		temp      float64
	}
)

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{msg: msg, model: opts.Model, maxTokens: maxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: modelID})
}

// Complete issues a non-streaming Messages.New request.
func (c *Client) Complete(ctx context.Context, req model.Request) (*chat.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg)
}

// Stream invokes Messages.NewStreaming and adapts incremental events into
// model.Chunks.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic messages.new stream: %w", err)
	}
	return &streamer{stream: stream}, nil
}

func (c *Client) prepareRequest(req model.Request) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	msgs, system, err := encodeMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	if req.ResponseJSON {
		system = append(system, sdk.TextBlockParam{Text: jsonInstruction(req.ResponseSchema)})
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(c.maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(c.model),
	}
	if len(system) > 0 {
		params.System = system
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	return &params, nil
}

func encodeMessages(msgs []chat.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	system := make([]sdk.TextBlockParam, 0, len(msgs))

	for _, m := range msgs {
		if m.Role == chat.RoleSystem {
			for _, c := range m.Contents {
				if t, ok := c.(*chat.TextContent); ok && t.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: t.Text})
				}
			}
			continue
		}

		blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Contents))
		for _, content := range m.Contents {
			switch v := content.(type) {
			case *chat.TextContent:
				if v.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(v.Text))
				}
			case *chat.FunctionCallContent:
				if v.Name == "" {
					return nil, nil, errors.New("anthropic: function call missing name")
				}
				blocks = append(blocks, sdk.NewToolUseBlock(v.CallID, v.Arguments, v.Name))
			case *chat.FunctionResultContent:
				blocks = append(blocks, sdk.NewToolResultBlock(v.CallID, resultText(v.Result), false))
			case *chat.ErrorContent:
				blocks = append(blocks, sdk.NewTextBlock(v.Message))
			default:
				// Reasoning, usage, and reference contents are not re-encoded
				// for the provider.
			}
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case chat.RoleUser, chat.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case chat.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func translateResponse(msg *sdk.Message) (*chat.Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	var contents []chat.Content
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				contents = append(contents, &chat.TextContent{Text: block.Text})
			}
		case "thinking":
			if block.Thinking != "" {
				contents = append(contents, &chat.ReasoningContent{Text: block.Thinking})
			}
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic: decode tool input: %w", err)
				}
			}
			contents = append(contents, &chat.FunctionCallContent{
				CallID:    block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	resp := &chat.Response{
		Messages: []chat.Message{{Role: chat.RoleAssistant, Contents: contents}},
	}
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		resp.Usage = &chat.UsageDetails{
			InputTokenCount:  chat.Int64(u.InputTokens),
			OutputTokenCount: chat.Int64(u.OutputTokens),
			TotalTokenCount:  chat.Int64(u.InputTokens + u.OutputTokens),
		}
	}
	return resp, nil
}

func resultText(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

func jsonInstruction(schema json.RawMessage) string {
	if len(schema) == 0 {
		return "Respond with a single valid JSON value and nothing else."
	}
	return "Respond with a single JSON value conforming to this JSON schema and nothing else:\n" + string(schema)
}
