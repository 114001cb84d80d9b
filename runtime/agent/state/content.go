// Package state implements the durable representation of an agent session:
// a versioned, serializable envelope wrapping an append-only log of correlated
// request/response entries. The wire format is JSON with $type discriminators
// and is shared across runtimes; unrecognized fields and content kinds are
// preserved rather than dropped so that documents written by newer minor
// versions survive a round trip through an older reader.
package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
)

// Content type tags used as the $type discriminator on the wire.
const (
	TypeText              = "text"
	TypeReasoning         = "reasoning"
	TypeFunctionCall      = "functionCall"
	TypeFunctionResult    = "functionResult"
	TypeData              = "data"
	TypeURI               = "uri"
	TypeError             = "error"
	TypeUsage             = "usage"
	TypeHostedFile        = "hostedFile"
	TypeHostedVectorStore = "hostedVectorStore"
	TypeUnknown           = "unknown"
)

// ErrUnknownContent is returned when an opaque content payload preserved via
// the unknown fallback cannot be interpreted as any recognized runtime content
// kind. The failure is reported to the caller, never silently dropped.
var ErrUnknownContent = errors.New("state: unrecognized content payload")

type (
	// Content is one serializable content item within a state Message. It is
	// a closed tagged union; decoding dispatches on the $type discriminator
	// and falls back to UnknownContent for tags this version does not know.
	Content interface {
		// ToChat reconstructs the equivalent runtime content value.
		ToChat() (chat.Content, error)

		contentType() string
	}

	// TextContent holds plain text.
	TextContent struct {
		Text  string
		Extra map[string]json.RawMessage
	}

	// ReasoningContent holds model reasoning text.
	ReasoningContent struct {
		Text  string
		Extra map[string]json.RawMessage
	}

	// FunctionCallContent records a tool invocation requested by the model.
	FunctionCallContent struct {
		CallID    string
		Name      string
		Arguments map[string]any
		Extra     map[string]json.RawMessage
	}

	// FunctionResultContent records the outcome of a tool invocation.
	FunctionResultContent struct {
		CallID string
		Result any
		Extra  map[string]json.RawMessage
	}

	// DataContent holds inline data expressed as a data URI.
	DataContent struct {
		URI       string
		MediaType string
		Extra     map[string]json.RawMessage
	}

	// URIContent references external content.
	URIContent struct {
		URI       string
		MediaType string
		Extra     map[string]json.RawMessage
	}

	// ErrorContent preserves a provider error in the log.
	ErrorContent struct {
		Message   string
		ErrorCode string
		Details   any
		Extra     map[string]json.RawMessage
	}

	// UsageContent embeds token usage in a message.
	UsageContent struct {
		Usage UsageDetails
		Extra map[string]json.RawMessage
	}

	// HostedFileContent references a provider-hosted file.
	HostedFileContent struct {
		FileID string
		Extra  map[string]json.RawMessage
	}

	// HostedVectorStoreContent references a provider-hosted vector store.
	HostedVectorStoreContent struct {
		VectorStoreID string
		Extra         map[string]json.RawMessage
	}

	// UnknownContent preserves a content object whose $type this version does
	// not recognize. Raw is the complete original JSON object and is re-emitted
	// verbatim on the next write.
	UnknownContent struct {
		Raw json.RawMessage
	}

	// UsageDetails records token counts on the wire. Nil counters mean "not
	// reported" and are omitted from the serialized form.
	UsageDetails struct {
		InputTokenCount  *int64
		OutputTokenCount *int64
		TotalTokenCount  *int64
		Extra            map[string]json.RawMessage
	}
)

func (*TextContent) contentType() string              { return TypeText }
func (*ReasoningContent) contentType() string         { return TypeReasoning }
func (*FunctionCallContent) contentType() string      { return TypeFunctionCall }
func (*FunctionResultContent) contentType() string    { return TypeFunctionResult }
func (*DataContent) contentType() string              { return TypeData }
func (*URIContent) contentType() string               { return TypeURI }
func (*ErrorContent) contentType() string             { return TypeError }
func (*UsageContent) contentType() string             { return TypeUsage }
func (*HostedFileContent) contentType() string        { return TypeHostedFile }
func (*HostedVectorStoreContent) contentType() string { return TypeHostedVectorStore }
func (*UnknownContent) contentType() string           { return TypeUnknown }

// FromChatContent converts a runtime content value into its wire form. The
// function is total over the sealed runtime union; values of kinds this
// package does not model explicitly are preserved through the unknown
// fallback by serializing them generically.
func FromChatContent(c chat.Content) Content {
	switch v := c.(type) {
	case *chat.TextContent:
		return &TextContent{Text: v.Text}
	case *chat.ReasoningContent:
		return &ReasoningContent{Text: v.Text}
	case *chat.FunctionCallContent:
		return &FunctionCallContent{CallID: v.CallID, Name: v.Name, Arguments: v.Arguments}
	case *chat.FunctionResultContent:
		return &FunctionResultContent{CallID: v.CallID, Result: v.Result}
	case *chat.DataContent:
		return &DataContent{URI: v.URI, MediaType: v.MediaType}
	case *chat.URIContent:
		return &URIContent{URI: v.URI, MediaType: v.MediaType}
	case *chat.ErrorContent:
		return &ErrorContent{Message: v.Message, ErrorCode: v.ErrorCode, Details: v.Details}
	case *chat.UsageContent:
		return &UsageContent{Usage: fromChatUsage(v.Usage)}
	case *chat.HostedFileContent:
		return &HostedFileContent{FileID: v.FileID}
	case *chat.HostedVectorStoreContent:
		return &HostedVectorStoreContent{VectorStoreID: v.VectorStoreID}
	default:
		return genericWire(string(c.Kind()), c)
	}
}

// genericWire serializes a content value this package has no wire struct for:
// the value's own fields become the object body and the kind becomes the
// $type tag. The result round-trips through UnknownContent.
func genericWire(kind string, v any) *UnknownContent {
	extra := map[string]json.RawMessage{}
	if body, err := json.Marshal(v); err == nil {
		_ = json.Unmarshal(body, &extra)
	}
	delete(extra, "$type")
	raw, err := encodeObject(kind, extra)
	if err != nil {
		raw, _ = json.Marshal(map[string]string{"$type": kind})
	}
	return &UnknownContent{Raw: raw}
}

// ToChat reconstructs the runtime text content.
func (c *TextContent) ToChat() (chat.Content, error) {
	return &chat.TextContent{Text: c.Text}, nil
}

// ToChat reconstructs the runtime reasoning content.
func (c *ReasoningContent) ToChat() (chat.Content, error) {
	return &chat.ReasoningContent{Text: c.Text}, nil
}

// ToChat reconstructs the runtime function call.
func (c *FunctionCallContent) ToChat() (chat.Content, error) {
	return &chat.FunctionCallContent{CallID: c.CallID, Name: c.Name, Arguments: c.Arguments}, nil
}

// ToChat reconstructs the runtime function result.
func (c *FunctionResultContent) ToChat() (chat.Content, error) {
	return &chat.FunctionResultContent{CallID: c.CallID, Result: c.Result}, nil
}

// ToChat reconstructs the runtime data content.
func (c *DataContent) ToChat() (chat.Content, error) {
	return &chat.DataContent{URI: c.URI, MediaType: c.MediaType}, nil
}

// ToChat reconstructs the runtime URI content.
func (c *URIContent) ToChat() (chat.Content, error) {
	return &chat.URIContent{URI: c.URI, MediaType: c.MediaType}, nil
}

// ToChat reconstructs the runtime error content.
func (c *ErrorContent) ToChat() (chat.Content, error) {
	return &chat.ErrorContent{Message: c.Message, ErrorCode: c.ErrorCode, Details: c.Details}, nil
}

// ToChat reconstructs the runtime usage content.
func (c *UsageContent) ToChat() (chat.Content, error) {
	return &chat.UsageContent{Usage: c.Usage.ToChat()}, nil
}

// ToChat reconstructs the runtime hosted file reference.
func (c *HostedFileContent) ToChat() (chat.Content, error) {
	return &chat.HostedFileContent{FileID: c.FileID}, nil
}

// ToChat reconstructs the runtime vector store reference.
func (c *HostedVectorStoreContent) ToChat() (chat.Content, error) {
	return &chat.HostedVectorStoreContent{VectorStoreID: c.VectorStoreID}, nil
}

// ToChat attempts to reinterpret the preserved payload as a recognized content
// kind: first the nested "content" object written by unknown-wrapping
// serializers, then the raw object itself. Fails with ErrUnknownContent when
// neither decodes to a known kind.
func (c *UnknownContent) ToChat() (chat.Content, error) {
	try := func(raw json.RawMessage) (chat.Content, bool) {
		decoded, err := decodeContent(raw)
		if err != nil {
			return nil, false
		}
		if _, unknown := decoded.(*UnknownContent); unknown {
			return nil, false
		}
		rc, err := decoded.ToChat()
		if err != nil {
			return nil, false
		}
		return rc, true
	}

	var env struct {
		Type    string          `json:"$type"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(c.Raw, &env); err == nil && env.Type == TypeUnknown && len(env.Content) > 0 {
		if rc, ok := try(env.Content); ok {
			return rc, nil
		}
	}
	if rc, ok := try(c.Raw); ok {
		return rc, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownContent, compactType(c.Raw))
}

func compactType(raw json.RawMessage) string {
	var env struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Type != "" {
		return fmt.Sprintf("$type=%q", env.Type)
	}
	return "missing $type"
}

func fromChatUsage(u chat.UsageDetails) UsageDetails {
	return UsageDetails{
		InputTokenCount:  cloneInt64(u.InputTokenCount),
		OutputTokenCount: cloneInt64(u.OutputTokenCount),
		TotalTokenCount:  cloneInt64(u.TotalTokenCount),
	}
}

// ToChat converts wire usage details into the runtime representation.
func (u UsageDetails) ToChat() chat.UsageDetails {
	return chat.UsageDetails{
		InputTokenCount:  cloneInt64(u.InputTokenCount),
		OutputTokenCount: cloneInt64(u.OutputTokenCount),
		TotalTokenCount:  cloneInt64(u.TotalTokenCount),
	}
}

// FromChatUsage converts runtime usage details to the wire form. Nil input
// yields nil so absent usage stays absent on the wire.
func FromChatUsage(u *chat.UsageDetails) *UsageDetails {
	if u == nil {
		return nil
	}
	out := fromChatUsage(*u)
	return &out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
