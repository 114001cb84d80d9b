package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/durableai/agent-sdk-go/runtime/agent/chat"
)

// Entry type tags used as the $type discriminator on conversation log entries.
const (
	EntryTypeRequest  = "request"
	EntryTypeResponse = "response"
)

// Response format names recorded on request entries.
const (
	ResponseTypeText = "text"
	ResponseTypeJSON = "json"
)

type (
	// Entry is one record in the append-only conversation log: a run request, a
	// correlated run response, or an unrecognized record preserved verbatim.
	Entry interface {
		// Correlation returns the correlation id joining a request with its
		// response, or "" for entries that carry none.
		Correlation() string

		entryType() string
	}

	// Message is the wire form of a chat message inside a log entry.
	Message struct {
		AuthorName string
		CreatedAt  *time.Time
		Role       string
		Contents   []Content
		Extra      map[string]json.RawMessage
	}

	// RequestEntry records a run request delivered to the session, appended
	// before the model is invoked so failed attempts leave a durable trace.
	RequestEntry struct {
		CorrelationID  string
		CreatedAt      time.Time
		Messages       []Message
		ResponseType   string
		ResponseSchema json.RawMessage
		Extra          map[string]json.RawMessage
	}

	// ResponseEntry records the finished response for an earlier request with
	// the same correlation id.
	ResponseEntry struct {
		CorrelationID string
		CreatedAt     time.Time
		Messages      []Message
		Usage         *UsageDetails
		Extra         map[string]json.RawMessage
	}

	// UnknownEntry preserves a log entry whose $type this version does not
	// recognize. Raw is re-emitted verbatim on the next write.
	UnknownEntry struct {
		Raw json.RawMessage
	}
)

func (*RequestEntry) entryType() string  { return EntryTypeRequest }
func (*ResponseEntry) entryType() string { return EntryTypeResponse }
func (*UnknownEntry) entryType() string  { return "" }

// Correlation returns the request's correlation id.
func (e *RequestEntry) Correlation() string { return e.CorrelationID }

// Correlation returns the response's correlation id.
func (e *ResponseEntry) Correlation() string { return e.CorrelationID }

// Correlation returns "" for preserved unknown entries.
func (e *UnknownEntry) Correlation() string { return "" }

// FromChatMessage converts a runtime message into its wire form.
func FromChatMessage(m chat.Message) Message {
	out := Message{
		AuthorName: m.AuthorName,
		Role:       string(m.Role),
	}
	if !m.CreatedAt.IsZero() {
		t := m.CreatedAt
		out.CreatedAt = &t
	}
	if len(m.Contents) > 0 {
		out.Contents = make([]Content, len(m.Contents))
		for i, c := range m.Contents {
			out.Contents[i] = FromChatContent(c)
		}
	}
	return out
}

// FromChatMessages converts a slice of runtime messages to wire form.
func FromChatMessages(msgs []chat.Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = FromChatMessage(m)
	}
	return out
}

// ToChat reconstructs the runtime message. Content items that cannot be
// reinterpreted (unknown payloads) surface an error rather than vanishing.
func (m Message) ToChat() (chat.Message, error) {
	out := chat.Message{
		AuthorName: m.AuthorName,
		Role:       chat.Role(m.Role),
	}
	if m.CreatedAt != nil {
		out.CreatedAt = *m.CreatedAt
	}
	if len(m.Contents) > 0 {
		out.Contents = make([]chat.Content, len(m.Contents))
		for i, c := range m.Contents {
			rc, err := c.ToChat()
			if err != nil {
				return chat.Message{}, fmt.Errorf("content %d: %w", i, err)
			}
			out.Contents[i] = rc
		}
	}
	return out, nil
}

// ToChatMessages reconstructs runtime messages from wire form.
func ToChatMessages(msgs []Message) ([]chat.Message, error) {
	if msgs == nil {
		return nil, nil
	}
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		cm, err := m.ToChat()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out[i] = cm
	}
	return out, nil
}

// ToResponse reconstructs the runtime response recorded by this entry.
func (e *ResponseEntry) ToResponse() (*chat.Response, error) {
	msgs, err := ToChatMessages(e.Messages)
	if err != nil {
		return nil, err
	}
	resp := &chat.Response{Messages: msgs}
	if e.Usage != nil {
		u := e.Usage.ToChat()
		resp.Usage = &u
	}
	return resp, nil
}

// MarshalJSON emits the wire message with its preserved extension fields.
func (m Message) MarshalJSON() ([]byte, error) {
	contents := make([]json.RawMessage, len(m.Contents))
	for i, c := range m.Contents {
		raw, err := MarshalContent(c)
		if err != nil {
			return nil, fmt.Errorf("content %d: %w", i, err)
		}
		contents[i] = raw
	}
	obj := make(map[string]json.RawMessage, 4+len(m.Extra))
	for k, v := range m.Extra {
		obj[k] = v
	}
	putJSON(obj, "role", m.Role)
	if m.AuthorName != "" {
		putJSON(obj, "authorName", m.AuthorName)
	}
	if m.CreatedAt != nil {
		putJSON(obj, "createdAt", m.CreatedAt.UTC().Format(time.RFC3339Nano))
	}
	putJSON(obj, "contents", contents)
	return json.Marshal(obj)
}

// UnmarshalJSON decodes the wire message, dispatching each content item on its
// $type and keeping unrecognized message fields in the extension bag.
func (m *Message) UnmarshalJSON(data []byte) error {
	obj, err := splitObject(data)
	if err != nil {
		return err
	}
	if err := popField(obj, "authorName", &m.AuthorName); err != nil {
		return err
	}
	if err := popField(obj, "role", &m.Role); err != nil {
		return err
	}
	var createdAt string
	if err := popField(obj, "createdAt", &createdAt); err != nil {
		return err
	}
	if createdAt != "" {
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return fmt.Errorf("decode createdAt: %w", err)
		}
		m.CreatedAt = &t
	}
	var rawContents []json.RawMessage
	if err := popField(obj, "contents", &rawContents); err != nil {
		return err
	}
	if rawContents != nil {
		m.Contents = make([]Content, len(rawContents))
		for i, raw := range rawContents {
			c, err := decodeContent(raw)
			if err != nil {
				return fmt.Errorf("content %d: %w", i, err)
			}
			m.Contents[i] = c
		}
	}
	m.Extra = leftoverExtra(obj)
	return nil
}

// MarshalEntry serializes a log entry into its tagged wire object.
func MarshalEntry(e Entry) ([]byte, error) {
	switch v := e.(type) {
	case *RequestEntry:
		return encodeObject(EntryTypeRequest, v.Extra,
			field{key: "correlationId", val: v.CorrelationID},
			field{key: "createdAt", val: v.CreatedAt.UTC().Format(time.RFC3339Nano)},
			field{key: "messages", val: v.Messages},
			field{key: "responseType", val: v.ResponseType},
			field{key: "responseSchema", val: v.ResponseSchema, omit: len(v.ResponseSchema) == 0},
		)
	case *ResponseEntry:
		return encodeObject(EntryTypeResponse, v.Extra,
			field{key: "correlationId", val: v.CorrelationID},
			field{key: "createdAt", val: v.CreatedAt.UTC().Format(time.RFC3339Nano)},
			field{key: "messages", val: v.Messages},
			field{key: "usage", val: v.Usage, omit: v.Usage == nil},
		)
	case *UnknownEntry:
		if len(v.Raw) == 0 {
			return []byte(`{}`), nil
		}
		return v.Raw, nil
	default:
		return nil, fmt.Errorf("state: cannot marshal entry of type %T", e)
	}
}

// decodeEntry dispatches a log entry on its $type discriminator, preserving
// unrecognized entries verbatim.
func decodeEntry(raw json.RawMessage) (Entry, error) {
	var env struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode entry envelope: %w", err)
	}

	obj, err := splitObject(raw)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case EntryTypeRequest:
		var e RequestEntry
		if err := popField(obj, "correlationId", &e.CorrelationID); err != nil {
			return nil, err
		}
		if err := popEntryTime(obj, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := popField(obj, "messages", &e.Messages); err != nil {
			return nil, err
		}
		if err := popField(obj, "responseType", &e.ResponseType); err != nil {
			return nil, err
		}
		if err := popField(obj, "responseSchema", &e.ResponseSchema); err != nil {
			return nil, err
		}
		e.Extra = leftoverExtra(obj)
		return &e, nil
	case EntryTypeResponse:
		var e ResponseEntry
		if err := popField(obj, "correlationId", &e.CorrelationID); err != nil {
			return nil, err
		}
		if err := popEntryTime(obj, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := popField(obj, "messages", &e.Messages); err != nil {
			return nil, err
		}
		if err := popField(obj, "usage", &e.Usage); err != nil {
			return nil, err
		}
		e.Extra = leftoverExtra(obj)
		return &e, nil
	default:
		return &UnknownEntry{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func popEntryTime(obj map[string]json.RawMessage, dst *time.Time) error {
	var s string
	if err := popField(obj, "createdAt", &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("decode createdAt: %w", err)
	}
	*dst = t
	return nil
}

func putJSON(obj map[string]json.RawMessage, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	obj[key] = raw
}
