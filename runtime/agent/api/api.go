// Package api defines the objects exchanged between callers and the
// entity-backed agent runtime: the run request delivered over the substrate's
// signal transport, the handle used to poll for the correlated response, and
// the signal/query names shared by engine drivers.
package api

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
	"github.com/durableai/agent-sdk-go/runtime/agent/session"
	"github.com/durableai/agent-sdk-go/runtime/agent/state"
)

// Names shared by the engine drivers. The signal delivers a serialized
// RunRequest to the session entity; the query returns the encoded state
// envelope.
const (
	RunSignalName  = "agentRunRequest"
	StateQueryName = "getState"
)

// Response format names accepted by ResponseFormat.
const (
	FormatText = state.ResponseTypeText
	FormatJSON = state.ResponseTypeJSON
)

type (
	// RunRequest is one agent invocation. The correlation id is minted once at
	// construction and travels with the request through serialization; it is
	// never regenerated on redelivery, which is what makes redelivered
	// requests recognizable in the session log.
	RunRequest struct {
		// CorrelationID joins this request with its eventual response entry.
		CorrelationID string `json:"correlationId"`

		// Messages is the new input for this run, in wire form.
		Messages []state.Message `json:"messages"`

		// Format optionally constrains the response shape. Nil means text.
		Format *ResponseFormat `json:"responseFormat,omitempty"`

		// EnableToolCalls gates tool use for this run. Nil means enabled;
		// the default survives serialization as an absent field.
		EnableToolCalls *bool `json:"enableToolCalls,omitempty"`

		// EnableToolNames restricts the callable tools when non-empty.
		EnableToolNames []string `json:"enableToolNames,omitempty"`
	}

	// ResponseFormat constrains the model output for one run.
	ResponseFormat struct {
		// Type is FormatText or FormatJSON.
		Type string `json:"type"`

		// Schema optionally constrains JSON output. Only meaningful when
		// Type is FormatJSON.
		Schema json.RawMessage `json:"schema,omitempty"`
	}

	// Handle is a stateless capability for retrieving the response to a
	// previously signaled run. It carries no cached result; every read goes to
	// the persisted session state.
	Handle struct {
		SessionID     session.ID `json:"sessionId"`
		CorrelationID string     `json:"correlationId"`
	}
)

// NewRunRequest builds a run request for the given runtime messages with a
// fresh correlation id.
func NewRunRequest(messages []chat.Message) *RunRequest {
	return &RunRequest{
		CorrelationID: uuid.NewString(),
		Messages:      state.FromChatMessages(messages),
	}
}

// TextFormat requests plain text output.
func TextFormat() *ResponseFormat { return &ResponseFormat{Type: FormatText} }

// JSONFormat requests JSON output, optionally constrained by schema.
func JSONFormat(schema json.RawMessage) *ResponseFormat {
	return &ResponseFormat{Type: FormatJSON, Schema: schema}
}

// ToolsEnabled reports the effective tool-call setting (default true).
func (r *RunRequest) ToolsEnabled() bool {
	return r.EnableToolCalls == nil || *r.EnableToolCalls
}

// ResponseType returns the format name recorded in the request's log entry.
func (r *RunRequest) ResponseType() string {
	if r.Format != nil && r.Format.Type == FormatJSON {
		return FormatJSON
	}
	return FormatText
}

// ResponseSchema returns the JSON schema constraining the response, or nil.
func (r *RunRequest) ResponseSchema() json.RawMessage {
	if r.Format == nil {
		return nil
	}
	return r.Format.Schema
}

// Validate checks the request is well formed before it enters the transport.
func (r *RunRequest) Validate() error {
	if r.CorrelationID == "" {
		return fmt.Errorf("api: run request has empty correlation id")
	}
	if r.Format != nil && r.Format.Type != FormatText && r.Format.Type != FormatJSON {
		return fmt.Errorf("api: unknown response format %q", r.Format.Type)
	}
	return nil
}

// Encode serializes the request for signal transport.
func (r *RunRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRunRequest parses a request from signal transport.
func DecodeRunRequest(data []byte) (*RunRequest, error) {
	var r RunRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("api: decode run request: %w", err)
	}
	if r.CorrelationID == "" {
		return nil, fmt.Errorf("api: run request missing correlation id")
	}
	return &r, nil
}
