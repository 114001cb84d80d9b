package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
)

func TestNewRunRequestMintsCorrelationID(t *testing.T) {
	a := NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "hi")})
	b := NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "hi")})

	require.NotEmpty(t, a.CorrelationID)
	require.NotEqual(t, a.CorrelationID, b.CorrelationID)
	require.NoError(t, a.Validate())
}

func TestCorrelationIDSurvivesTransport(t *testing.T) {
	req := NewRunRequest([]chat.Message{chat.NewTextMessage(chat.RoleUser, "hello")})
	req.Format = JSONFormat(json.RawMessage(`{"type":"object"}`))

	raw, err := req.Encode()
	require.NoError(t, err)

	decoded, err := DecodeRunRequest(raw)
	require.NoError(t, err)
	require.Equal(t, req.CorrelationID, decoded.CorrelationID)
	require.Equal(t, FormatJSON, decoded.ResponseType())
	require.JSONEq(t, `{"type":"object"}`, string(decoded.ResponseSchema()))
}

func TestDecodeRunRequestRequiresCorrelationID(t *testing.T) {
	_, err := DecodeRunRequest([]byte(`{"messages":[]}`))
	require.Error(t, err)
}

func TestToolsEnabledDefaultsTrue(t *testing.T) {
	req := NewRunRequest(nil)
	require.True(t, req.ToolsEnabled())

	// The default must survive serialization as an absent field, not false.
	raw, err := req.Encode()
	require.NoError(t, err)
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &obj))
	require.NotContains(t, obj, "enableToolCalls")

	decoded, err := DecodeRunRequest(raw)
	require.NoError(t, err)
	require.True(t, decoded.ToolsEnabled())

	off := false
	req.EnableToolCalls = &off
	require.False(t, req.ToolsEnabled())
}

func TestValidateRejectsUnknownFormat(t *testing.T) {
	req := NewRunRequest(nil)
	req.Format = &ResponseFormat{Type: "yaml"}
	require.Error(t, req.Validate())
}

func TestResponseTypeDefaultsToText(t *testing.T) {
	req := NewRunRequest(nil)
	require.Equal(t, FormatText, req.ResponseType())
	require.Nil(t, req.ResponseSchema())

	req.Format = TextFormat()
	require.Equal(t, FormatText, req.ResponseType())
}
