// Package model defines the provider-agnostic interface for chat-completion
// backends consumed by the durable agent executor. Implementations wrap
// provider SDKs (Anthropic, OpenAI, Bedrock, ...) and translate the normalized
// request into provider-specific calls. The executor treats the client as an
// opaque capability: give it messages and optional constraints, get back a
// response or a stream of incremental updates.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
)

type (
	// Client is the contract the executor uses to invoke a model.
	// Implementations must be safe for concurrent use across sessions.
	Client interface {
		// Complete sends the full message history and returns the finished
		// response. Returns an error if the provider is unavailable or the
		// request is malformed; the error is propagated, never swallowed.
		Complete(ctx context.Context, req Request) (*chat.Response, error)

		// Stream sends the request and returns a Streamer yielding incremental
		// chunks. Providers without streaming support return
		// ErrStreamingUnsupported; callers then fall back to Complete.
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Request captures the normalized parameters of one model invocation.
	Request struct {
		// Messages is the ordered conversation history, oldest first.
		Messages []chat.Message

		// ResponseJSON requests structured JSON output when true. Providers
		// that support schema-constrained output may additionally honor
		// ResponseSchema.
		ResponseJSON bool

		// ResponseSchema optionally constrains JSON output. Nil means
		// unconstrained. Ignored when ResponseJSON is false.
		ResponseSchema json.RawMessage

		// ToolsEnabled reports whether the model may request tool calls.
		ToolsEnabled bool

		// ToolNames restricts the callable tools when non-empty. Only
		// meaningful when ToolsEnabled is true.
		ToolNames []string
	}

	// Streamer delivers incremental model output. Successive Recv calls return
	// chunks until io.EOF. Close releases underlying resources and must be
	// called by the consumer.
	Streamer interface {
		// Recv returns the next chunk, or io.EOF when the stream is done.
		Recv() (Chunk, error)
		// Close closes the stream.
		Close() error
	}

	// Chunk is one streaming event. Kind indicates which field is populated.
	Chunk struct {
		// Kind is one of ChunkText, ChunkContent or ChunkUsage.
		Kind ChunkKind
		// Text holds an assistant text delta when Kind == ChunkText.
		Text string
		// Content holds a complete non-text content item (function call,
		// reasoning, ...) when Kind == ChunkContent.
		Content chat.Content
		// Usage reports an incremental usage delta when Kind == ChunkUsage.
		Usage *chat.UsageDetails
	}

	// ChunkKind discriminates streaming events.
	ChunkKind string
)

// Chunk kinds emitted by Streamer implementations.
const (
	ChunkText    ChunkKind = "text"
	ChunkContent ChunkKind = "content"
	ChunkUsage   ChunkKind = "usage"
)

// ErrStreamingUnsupported indicates the provider does not implement streaming
// for the requested model or parameters.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// Accumulate drains the streamer and folds its chunks into one logical
// response: text deltas coalesce into a single assistant text content, other
// content items are appended in arrival order, and usage deltas are summed.
// The streamer is closed before returning.
func Accumulate(s Streamer) (*chat.Response, error) {
	defer s.Close()

	var (
		text     string
		contents []chat.Content
		usage    *chat.UsageDetails
	)
	for {
		chunk, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch chunk.Kind {
		case ChunkText:
			text += chunk.Text
		case ChunkContent:
			if chunk.Content != nil {
				contents = append(contents, chunk.Content)
			}
		case ChunkUsage:
			if chunk.Usage != nil {
				if usage == nil {
					usage = &chat.UsageDetails{}
				}
				usage.Add(*chunk.Usage)
			}
		}
	}

	ordered := make([]chat.Content, 0, len(contents)+1)
	if text != "" {
		ordered = append(ordered, &chat.TextContent{Text: text})
	}
	ordered = append(ordered, contents...)
	return &chat.Response{
		Messages: []chat.Message{{Role: chat.RoleAssistant, Contents: ordered}},
		Usage:    usage,
	}, nil
}
