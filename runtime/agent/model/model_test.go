package model

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
)

type sliceStreamer struct {
	chunks []Chunk
	err    error
	pos    int
	closed bool
}

func (s *sliceStreamer) Recv() (Chunk, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return Chunk{}, s.err
		}
		return Chunk{}, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *sliceStreamer) Close() error {
	s.closed = true
	return nil
}

func TestAccumulateFoldsChunks(t *testing.T) {
	s := &sliceStreamer{chunks: []Chunk{
		{Kind: ChunkText, Text: "Hel"},
		{Kind: ChunkUsage, Usage: &chat.UsageDetails{InputTokenCount: chat.Int64(4)}},
		{Kind: ChunkText, Text: "lo"},
		{Kind: ChunkContent, Content: &chat.FunctionCallContent{CallID: "c1", Name: "f"}},
		{Kind: ChunkUsage, Usage: &chat.UsageDetails{OutputTokenCount: chat.Int64(2)}},
	}}

	resp, err := Accumulate(s)
	require.NoError(t, err)
	require.True(t, s.closed)

	require.Len(t, resp.Messages, 1)
	msg := resp.Messages[0]
	require.Equal(t, chat.RoleAssistant, msg.Role)
	require.Len(t, msg.Contents, 2)
	require.Equal(t, "Hello", msg.Text())
	require.IsType(t, &chat.FunctionCallContent{}, msg.Contents[1])

	require.Equal(t, int64(4), *resp.Usage.InputTokenCount)
	require.Equal(t, int64(2), *resp.Usage.OutputTokenCount)
}

func TestAccumulatePropagatesError(t *testing.T) {
	boom := errors.New("stream broke")
	s := &sliceStreamer{chunks: []Chunk{{Kind: ChunkText, Text: "partial"}}, err: boom}

	_, err := Accumulate(s)
	require.ErrorIs(t, err, boom)
	require.True(t, s.closed)
}

func TestAccumulateEmptyStream(t *testing.T) {
	resp, err := Accumulate(&sliceStreamer{})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	require.Empty(t, resp.Messages[0].Contents)
	require.Nil(t, resp.Usage)
}
