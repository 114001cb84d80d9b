package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion is the version writers stamp on every encoded
// document, regardless of the version the document carried when loaded.
const CurrentSchemaVersion = "1.0.0"

// supportedMajor is the highest schema major this reader understands.
// Documents with the same major but a higher minor decode fine; their
// unrecognized fields ride along in the extension bags.
const supportedMajor = 1

// Errors reported by envelope decoding and log mutation.
var (
	// ErrUnsupportedSchema indicates a document written under a schema major
	// this reader does not support. Distinct from parse failures so callers
	// can tell incompatibility from corruption.
	ErrUnsupportedSchema = errors.New("state: unsupported schema version")

	// ErrDuplicateCorrelation indicates an attempt to append a request whose
	// correlation id is already present in the log.
	ErrDuplicateCorrelation = errors.New("state: correlation id already in log")

	// ErrUnknownCorrelation indicates an attempt to append a response whose
	// correlation id has no earlier request entry. Protocol misuse, not an
	// expected runtime condition.
	ErrUnknownCorrelation = errors.New("state: no request entry for correlation id")
)

type (
	// State is the versioned envelope persisted for one agent session. The
	// conversation log is append-only; mutations go through AppendRequest and
	// AppendResponse which enforce the correlation preconditions.
	State struct {
		// SchemaVersion is the version the document carried when decoded.
		// Encode ignores it and always writes CurrentSchemaVersion.
		SchemaVersion string

		// Data holds the session payload.
		Data Data

		// Extra preserves unrecognized envelope fields.
		Extra map[string]json.RawMessage
	}

	// Data is the payload section of the envelope.
	Data struct {
		// ConversationHistory is the append-only entry log, oldest first.
		ConversationHistory []Entry

		// Extra preserves unrecognized data fields.
		Extra map[string]json.RawMessage
	}

	// SchemaVersionError details a version-gate rejection.
	SchemaVersionError struct {
		// Version is the offending schemaVersion string from the document.
		Version string
		// SupportedMajor is the highest major this reader accepts.
		SupportedMajor uint64
	}
)

// Error implements error.
func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("state: schema version %q not supported (reader supports major %d)", e.Version, e.SupportedMajor)
}

// Unwrap makes the error match ErrUnsupportedSchema via errors.Is.
func (e *SchemaVersionError) Unwrap() error { return ErrUnsupportedSchema }

// New returns an empty state at the current schema version.
func New() *State {
	return &State{SchemaVersion: CurrentSchemaVersion}
}

// Decode parses a persisted envelope. Documents written under an unsupported
// schema major fail with an error matching ErrUnsupportedSchema; malformed
// documents fail with ordinary parse errors. Unrecognized fields at every
// level are retained and re-emitted by Encode.
func Decode(data []byte) (*State, error) {
	obj, err := splitObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode state envelope: %w", err)
	}

	var st State
	if err := popField(obj, "schemaVersion", &st.SchemaVersion); err != nil {
		return nil, err
	}
	ver, err := semver.NewVersion(st.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("decode schemaVersion %q: %w", st.SchemaVersion, err)
	}
	if ver.Major() != supportedMajor {
		return nil, &SchemaVersionError{Version: st.SchemaVersion, SupportedMajor: supportedMajor}
	}

	var rawData json.RawMessage
	if err := popField(obj, "data", &rawData); err != nil {
		return nil, err
	}
	if len(rawData) > 0 {
		dataObj, err := splitObject(rawData)
		if err != nil {
			return nil, fmt.Errorf("decode state data: %w", err)
		}
		var rawEntries []json.RawMessage
		if err := popField(dataObj, "conversationHistory", &rawEntries); err != nil {
			return nil, err
		}
		if rawEntries != nil {
			st.Data.ConversationHistory = make([]Entry, len(rawEntries))
			for i, raw := range rawEntries {
				e, err := decodeEntry(raw)
				if err != nil {
					return nil, fmt.Errorf("entry %d: %w", i, err)
				}
				st.Data.ConversationHistory[i] = e
			}
		}
		if len(dataObj) > 0 {
			st.Data.Extra = dataObj
		}
	}
	if len(obj) > 0 {
		st.Extra = obj
	}
	return &st, nil
}

// Encode serializes the envelope. The schemaVersion written is always
// CurrentSchemaVersion; preserved extension fields are re-emitted at their
// original positions.
func (s *State) Encode() ([]byte, error) {
	entries := make([]json.RawMessage, len(s.Data.ConversationHistory))
	for i, e := range s.Data.ConversationHistory {
		raw, err := MarshalEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries[i] = raw
	}

	dataObj := make(map[string]json.RawMessage, 1+len(s.Data.Extra))
	for k, v := range s.Data.Extra {
		dataObj[k] = v
	}
	putJSON(dataObj, "conversationHistory", entries)
	rawData, err := json.Marshal(dataObj)
	if err != nil {
		return nil, err
	}

	obj := make(map[string]json.RawMessage, 2+len(s.Extra))
	for k, v := range s.Extra {
		obj[k] = v
	}
	putJSON(obj, "schemaVersion", CurrentSchemaVersion)
	obj["data"] = rawData
	return json.Marshal(obj)
}

// AppendRequest appends a request entry to the log. The correlation id must
// not already appear on any entry; redelivered requests are answered from the
// log by the caller, never re-appended.
func (s *State) AppendRequest(e *RequestEntry) error {
	if e.CorrelationID == "" {
		return errors.New("state: request entry has empty correlation id")
	}
	for _, existing := range s.Data.ConversationHistory {
		if existing.Correlation() == e.CorrelationID {
			return fmt.Errorf("%w: %s", ErrDuplicateCorrelation, e.CorrelationID)
		}
	}
	s.Data.ConversationHistory = append(s.Data.ConversationHistory, e)
	return nil
}

// AppendResponse appends a response entry. The log must already contain a
// request with the same correlation id and no response for it yet.
func (s *State) AppendResponse(e *ResponseEntry) error {
	if e.CorrelationID == "" {
		return errors.New("state: response entry has empty correlation id")
	}
	if s.FindRequest(e.CorrelationID) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCorrelation, e.CorrelationID)
	}
	if s.FindResponse(e.CorrelationID) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateCorrelation, e.CorrelationID)
	}
	s.Data.ConversationHistory = append(s.Data.ConversationHistory, e)
	return nil
}

// FindRequest returns the request entry with the given correlation id, or nil.
func (s *State) FindRequest(correlationID string) *RequestEntry {
	for _, e := range s.Data.ConversationHistory {
		if req, ok := e.(*RequestEntry); ok && req.CorrelationID == correlationID {
			return req
		}
	}
	return nil
}

// FindResponse returns the response entry with the given correlation id, or
// nil when the run has not completed. This lookup is the unit of idempotent
// response retrieval used by the poller.
func (s *State) FindResponse(correlationID string) *ResponseEntry {
	for _, e := range s.Data.ConversationHistory {
		if resp, ok := e.(*ResponseEntry); ok && resp.CorrelationID == correlationID {
			return resp
		}
	}
	return nil
}

// History flattens the log into the ordered message list fed to the model:
// every request's and response's messages, oldest entry first. Unknown
// entries contribute nothing.
func (s *State) History() []Message {
	var out []Message
	for _, e := range s.Data.ConversationHistory {
		switch v := e.(type) {
		case *RequestEntry:
			out = append(out, v.Messages...)
		case *ResponseEntry:
			out = append(out, v.Messages...)
		}
	}
	return out
}

// Len reports the number of log entries.
func (s *State) Len() int { return len(s.Data.ConversationHistory) }
