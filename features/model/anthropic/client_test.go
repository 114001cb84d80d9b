package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/require"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/model"
)

// fakeMessages records the params passed to New and returns a scripted reply.
type fakeMessages struct {
	got   sdk.MessageNewParams
	reply *sdk.Message
	err   error
}

func (f *fakeMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.got = body
	return f.reply, f.err
}

func (f *fakeMessages) NewStreaming(context.Context, sdk.MessageNewParams, ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	panic("not used")
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{Model: "claude"})
	require.Error(t, err)

	_, err = New(&fakeMessages{}, Options{})
	require.Error(t, err)
}

func TestCompleteTranslatesResponse(t *testing.T) {
	fm := &fakeMessages{reply: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "bonjour"},
			{Type: "thinking", Thinking: "considering"},
		},
		Usage: sdk.Usage{InputTokens: 7, OutputTokens: 3},
	}}
	c, err := New(fm, Options{Model: "claude-test"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), model.Request{
		Messages: []chat.Message{
			chat.NewTextMessage(chat.RoleSystem, "be brief"),
			chat.NewTextMessage(chat.RoleUser, "salut"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "bonjour", resp.Text())
	require.Equal(t, int64(7), *resp.Usage.InputTokenCount)
	require.Equal(t, int64(10), *resp.Usage.TotalTokenCount)

	// System messages become system blocks, not conversation turns.
	require.Len(t, fm.got.Messages, 1)
	require.Len(t, fm.got.System, 1)
	require.Equal(t, "be brief", fm.got.System[0].Text)
}

func TestCompleteRequiresMessages(t *testing.T) {
	c, err := New(&fakeMessages{}, Options{Model: "claude-test"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), model.Request{})
	require.Error(t, err)
}

func TestJSONModeAppendsInstruction(t *testing.T) {
	fm := &fakeMessages{reply: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: `{"ok":true}`}},
	}}
	c, err := New(fm, Options{Model: "claude-test"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), model.Request{
		Messages:       []chat.Message{chat.NewTextMessage(chat.RoleUser, "go")},
		ResponseJSON:   true,
		ResponseSchema: []byte(`{"type":"object"}`),
	})
	require.NoError(t, err)
	require.Len(t, fm.got.System, 1)
	require.Contains(t, fm.got.System[0].Text, `{"type":"object"}`)
}

func TestEncodeMessagesMapsToolContents(t *testing.T) {
	msgs, system, err := encodeMessages([]chat.Message{
		{Role: chat.RoleAssistant, Contents: []chat.Content{
			&chat.FunctionCallContent{CallID: "c1", Name: "lookup", Arguments: map[string]any{"q": "x"}},
		}},
		{Role: chat.RoleTool, Contents: []chat.Content{
			&chat.FunctionResultContent{CallID: "c1", Result: "found"},
		}},
	})
	require.NoError(t, err)
	require.Empty(t, system)
	require.Len(t, msgs, 2)
}
