// Package chat defines the in-memory conversation model shared by agents,
// model clients, and the durable state layer. It provides a sealed Content
// union for the pieces that make up a chat message, the Message and Response
// containers exchanged with chat-completion backends, and the usage details
// reported by providers.
//
// Content is intentionally a closed set: the durable state layer depends on
// being able to enumerate every variant when converting to its wire form.
// Content kinds added by future versions travel through the state layer's
// unknown fallback rather than extending this interface.
package chat

import "time"

// Role identifies the author class of a message. Roles are open strings, not
// a closed enum, so agent layers can introduce custom roles without touching
// this package.
type Role string

// Well-known conversation roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind discriminates the concrete type of a Content value.
type ContentKind string

// Content kinds covered by the runtime model.
const (
	KindText              ContentKind = "text"
	KindReasoning         ContentKind = "reasoning"
	KindFunctionCall      ContentKind = "functionCall"
	KindFunctionResult    ContentKind = "functionResult"
	KindData              ContentKind = "data"
	KindURI               ContentKind = "uri"
	KindError             ContentKind = "error"
	KindUsage             ContentKind = "usage"
	KindHostedFile        ContentKind = "hostedFile"
	KindHostedVectorStore ContentKind = "hostedVectorStore"
)

type (
	// Content is one unit of conversational content within a Message. It is a
	// sealed interface; inspect values with a type switch over the concrete
	// types in this package.
	Content interface {
		// Kind returns the discriminator for this content value.
		Kind() ContentKind

		sealed()
	}

	// Message is a single role-tagged chat message composed of ordered content
	// items.
	Message struct {
		// AuthorName optionally names the author within the role (e.g. a
		// specific agent or tool name). Empty when not reported.
		AuthorName string

		// CreatedAt records when the message was produced. Zero when unknown.
		CreatedAt time.Time

		// Role tags the message author class. Open-ended; see Role constants
		// for the well-known values.
		Role Role

		// Contents holds the ordered content items of the message.
		Contents []Content
	}

	// Response is the finished result of one agent invocation: the messages
	// produced by the model plus optional usage accounting.
	Response struct {
		// Messages are the messages generated for this response, in order.
		Messages []Message

		// Usage reports token consumption when the provider made it available.
		Usage *UsageDetails
	}

	// UsageDetails records token counts reported by a model provider. Counts
	// are pointers because providers report them inconsistently; nil means
	// "not reported", which is distinct from zero.
	UsageDetails struct {
		InputTokenCount  *int64
		OutputTokenCount *int64
		TotalTokenCount  *int64
	}
)

type base struct{}

func (base) sealed() {}

// TextContent holds plain text.
type TextContent struct {
	base
	Text string
}

// Kind returns KindText.
func (*TextContent) Kind() ContentKind { return KindText }

// ReasoningContent holds model reasoning / chain-of-thought text.
type ReasoningContent struct {
	base
	Text string
}

// Kind returns KindReasoning.
func (*ReasoningContent) Kind() ContentKind { return KindReasoning }

// FunctionCallContent is a tool invocation requested by the model.
type FunctionCallContent struct {
	base
	CallID    string
	Name      string
	Arguments map[string]any
}

// Kind returns KindFunctionCall.
func (*FunctionCallContent) Kind() ContentKind { return KindFunctionCall }

// FunctionResultContent carries the result of a prior tool invocation,
// correlated by CallID.
type FunctionResultContent struct {
	base
	CallID string
	Result any
}

// Kind returns KindFunctionResult.
func (*FunctionResultContent) Kind() ContentKind { return KindFunctionResult }

// DataContent holds inline binary data expressed as a data URI.
type DataContent struct {
	base
	URI       string
	MediaType string
}

// Kind returns KindData.
func (*DataContent) Kind() ContentKind { return KindData }

// URIContent references external content by URI.
type URIContent struct {
	base
	URI       string
	MediaType string
}

// Kind returns KindURI.
func (*URIContent) Kind() ContentKind { return KindURI }

// ErrorContent surfaces a provider error as message content.
type ErrorContent struct {
	base
	Message   string
	ErrorCode string
	Details   any
}

// Kind returns KindError.
func (*ErrorContent) Kind() ContentKind { return KindError }

// UsageContent embeds token usage in a message stream.
type UsageContent struct {
	base
	Usage UsageDetails
}

// Kind returns KindUsage.
func (*UsageContent) Kind() ContentKind { return KindUsage }

// HostedFileContent references a provider-hosted file by identifier.
type HostedFileContent struct {
	base
	FileID string
}

// Kind returns KindHostedFile.
func (*HostedFileContent) Kind() ContentKind { return KindHostedFile }

// HostedVectorStoreContent references a provider-hosted vector store.
type HostedVectorStoreContent struct {
	base
	VectorStoreID string
}

// Kind returns KindHostedVectorStore.
func (*HostedVectorStoreContent) Kind() ContentKind { return KindHostedVectorStore }

// Text concatenates the plain-text content of the message in order. Non-text
// content is skipped.
func (m *Message) Text() string {
	var out string
	for _, c := range m.Contents {
		if t, ok := c.(*TextContent); ok {
			out += t.Text
		}
	}
	return out
}

// Text concatenates the plain-text content of all response messages.
func (r *Response) Text() string {
	var out string
	for i := range r.Messages {
		out += r.Messages[i].Text()
	}
	return out
}

// NewTextMessage builds a single-content text message with the given role.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Contents: []Content{&TextContent{Text: text}}}
}

// Int64 returns a pointer to v. Convenience for populating UsageDetails.
func Int64(v int64) *int64 { return &v }

// Add accumulates counts from other into u, treating nil counters as zero.
// Used when folding streamed usage deltas into one logical response.
func (u *UsageDetails) Add(other UsageDetails) {
	add := func(dst **int64, src *int64) {
		if src == nil {
			return
		}
		if *dst == nil {
			v := *src
			*dst = &v
			return
		}
		**dst += *src
	}
	add(&u.InputTokenCount, other.InputTokenCount)
	add(&u.OutputTokenCount, other.OutputTokenCount)
	add(&u.TotalTokenCount, other.TotalTokenCount)
}
