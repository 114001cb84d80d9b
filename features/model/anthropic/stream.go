package anthropic

import (
	"fmt"
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
)

// streamer adapts an Anthropic Messages event stream to model.Streamer.
// Recv advances the underlying SSE stream until an event of interest and
// translates it; bookkeeping events (content_block_start, message_stop, ...)
// are skipped.
type streamer struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Recv returns the next chunk or io.EOF when the provider closes the stream.
func (s *streamer) Recv() (model.Chunk, error) {
	for s.stream.Next() {
		ev := s.stream.Current()
		switch ev.Type {
		case "message_start":
			u := ev.Message.Usage
			if u.InputTokens == 0 && u.OutputTokens == 0 {
				continue
			}
			return model.Chunk{Kind: model.ChunkUsage, Usage: &chat.UsageDetails{
				InputTokenCount:  chat.Int64(u.InputTokens),
				OutputTokenCount: chat.Int64(u.OutputTokens),
			}}, nil
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text == "" {
					continue
				}
				return model.Chunk{Kind: model.ChunkText, Text: ev.Delta.Text}, nil
			case "thinking_delta":
				if ev.Delta.Thinking == "" {
					continue
				}
				return model.Chunk{
					Kind:    model.ChunkContent,
					Content: &chat.ReasoningContent{Text: ev.Delta.Thinking},
				}, nil
			}
		case "message_delta":
			if ev.Usage.OutputTokens == 0 {
				continue
			}
			return model.Chunk{Kind: model.ChunkUsage, Usage: &chat.UsageDetails{
				OutputTokenCount: chat.Int64(ev.Usage.OutputTokens),
			}}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return model.Chunk{}, fmt.Errorf("anthropic stream: %w", err)
	}
	return model.Chunk{}, io.EOF
}

// Close closes the underlying SSE stream.
func (s *streamer) Close() error {
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}
