package state

import (
	"encoding/json"
	"fmt"
)

// field pairs a wire key with its value for encoding. When omit is true the
// key is skipped entirely (absent, not null).
type field struct {
	key  string
	val  any
	omit bool
}

// encodeObject marshals the known fields of a tagged object, overlays any
// preserved extension fields, and sets the $type discriminator last so a known
// field can never be shadowed by stale extension data.
func encodeObject(typeTag string, extra map[string]json.RawMessage, fields ...field) ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(fields)+len(extra)+1)
	for k, v := range extra {
		obj[k] = v
	}
	for _, f := range fields {
		if f.omit {
			continue
		}
		raw, err := json.Marshal(f.val)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.key, err)
		}
		obj[f.key] = raw
	}
	raw, err := json.Marshal(typeTag)
	if err != nil {
		return nil, err
	}
	obj["$type"] = raw
	return json.Marshal(obj)
}

// splitObject decodes raw into a mutable field map for selective extraction.
func splitObject(raw []byte) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// popField extracts and removes a known field, leaving only extension data
// behind. Missing fields leave dst untouched.
func popField(obj map[string]json.RawMessage, key string, dst any) error {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	delete(obj, key)
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// leftoverExtra returns the remaining fields as the extension bag, or nil when
// everything was consumed. The $type discriminator is never part of the bag.
func leftoverExtra(obj map[string]json.RawMessage) map[string]json.RawMessage {
	delete(obj, "$type")
	if len(obj) == 0 {
		return nil
	}
	return obj
}

// MarshalContent serializes a single content item into its tagged wire object.
func MarshalContent(c Content) ([]byte, error) {
	switch v := c.(type) {
	case *TextContent:
		return encodeObject(TypeText, v.Extra, field{key: "text", val: v.Text})
	case *ReasoningContent:
		return encodeObject(TypeReasoning, v.Extra, field{key: "text", val: v.Text})
	case *FunctionCallContent:
		return encodeObject(TypeFunctionCall, v.Extra,
			field{key: "callId", val: v.CallID},
			field{key: "name", val: v.Name},
			field{key: "arguments", val: v.Arguments, omit: v.Arguments == nil},
		)
	case *FunctionResultContent:
		return encodeObject(TypeFunctionResult, v.Extra,
			field{key: "callId", val: v.CallID},
			field{key: "result", val: v.Result, omit: v.Result == nil},
		)
	case *DataContent:
		return encodeObject(TypeData, v.Extra,
			field{key: "uri", val: v.URI},
			field{key: "mediaType", val: v.MediaType, omit: v.MediaType == ""},
		)
	case *URIContent:
		return encodeObject(TypeURI, v.Extra,
			field{key: "uri", val: v.URI},
			field{key: "mediaType", val: v.MediaType},
		)
	case *ErrorContent:
		return encodeObject(TypeError, v.Extra,
			field{key: "message", val: v.Message, omit: v.Message == ""},
			field{key: "errorCode", val: v.ErrorCode, omit: v.ErrorCode == ""},
			field{key: "details", val: v.Details, omit: v.Details == nil},
		)
	case *UsageContent:
		return encodeObject(TypeUsage, v.Extra, field{key: "usage", val: v.Usage})
	case *HostedFileContent:
		return encodeObject(TypeHostedFile, v.Extra, field{key: "fileId", val: v.FileID})
	case *HostedVectorStoreContent:
		return encodeObject(TypeHostedVectorStore, v.Extra, field{key: "vectorStoreId", val: v.VectorStoreID})
	case *UnknownContent:
		if len(v.Raw) == 0 {
			return []byte(`{}`), nil
		}
		return v.Raw, nil
	default:
		return nil, fmt.Errorf("state: cannot marshal content of type %T", c)
	}
}

// decodeContent dispatches on the $type discriminator. Objects carrying an
// unrecognized tag are preserved verbatim through UnknownContent so a newer
// writer's content survives a round trip through this reader.
func decodeContent(raw json.RawMessage) (Content, error) {
	var env struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode content envelope: %w", err)
	}

	obj, err := splitObject(raw)
	if err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeText:
		var v TextContent
		if err := popField(obj, "text", &v.Text); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeReasoning:
		var v ReasoningContent
		if err := popField(obj, "text", &v.Text); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeFunctionCall:
		var v FunctionCallContent
		if err := popField(obj, "callId", &v.CallID); err != nil {
			return nil, err
		}
		if err := popField(obj, "name", &v.Name); err != nil {
			return nil, err
		}
		if err := popField(obj, "arguments", &v.Arguments); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeFunctionResult:
		var v FunctionResultContent
		if err := popField(obj, "callId", &v.CallID); err != nil {
			return nil, err
		}
		if err := popField(obj, "result", &v.Result); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeData:
		var v DataContent
		if err := popField(obj, "uri", &v.URI); err != nil {
			return nil, err
		}
		if err := popField(obj, "mediaType", &v.MediaType); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeURI:
		var v URIContent
		if err := popField(obj, "uri", &v.URI); err != nil {
			return nil, err
		}
		if err := popField(obj, "mediaType", &v.MediaType); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeError:
		var v ErrorContent
		if err := popField(obj, "message", &v.Message); err != nil {
			return nil, err
		}
		if err := popField(obj, "errorCode", &v.ErrorCode); err != nil {
			return nil, err
		}
		if err := popField(obj, "details", &v.Details); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeUsage:
		var v UsageContent
		if err := popField(obj, "usage", &v.Usage); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeHostedFile:
		var v HostedFileContent
		if err := popField(obj, "fileId", &v.FileID); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	case TypeHostedVectorStore:
		var v HostedVectorStoreContent
		if err := popField(obj, "vectorStoreId", &v.VectorStoreID); err != nil {
			return nil, err
		}
		v.Extra = leftoverExtra(obj)
		return &v, nil
	default:
		return &UnknownContent{Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

// MarshalJSON emits the reported counters and any preserved extension fields.
func (u UsageDetails) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, 3+len(u.Extra))
	for k, v := range u.Extra {
		obj[k] = v
	}
	put := func(key string, v *int64) error {
		if v == nil {
			return nil
		}
		raw, err := json.Marshal(*v)
		if err != nil {
			return err
		}
		obj[key] = raw
		return nil
	}
	if err := put("inputTokenCount", u.InputTokenCount); err != nil {
		return nil, err
	}
	if err := put("outputTokenCount", u.OutputTokenCount); err != nil {
		return nil, err
	}
	if err := put("totalTokenCount", u.TotalTokenCount); err != nil {
		return nil, err
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes the known counters and keeps everything else in the
// extension bag.
func (u *UsageDetails) UnmarshalJSON(data []byte) error {
	obj, err := splitObject(data)
	if err != nil {
		return err
	}
	if err := popField(obj, "inputTokenCount", &u.InputTokenCount); err != nil {
		return err
	}
	if err := popField(obj, "outputTokenCount", &u.OutputTokenCount); err != nil {
		return err
	}
	if err := popField(obj, "totalTokenCount", &u.TotalTokenCount); err != nil {
		return err
	}
	if len(obj) > 0 {
		u.Extra = obj
	}
	return nil
}
