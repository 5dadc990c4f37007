package chatcall

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/skosovsky/chatcall/internal/cast"
)

// Normalize decodes any Payload variant into the canonical ordered message list.
// Order is preserved; records are never merged, reordered or deduplicated.
// Returns an error wrapping ErrMalformedPayload (usually a *PayloadError) when the
// input matches neither the tagged nor the bare shape, or when the list is empty.
func Normalize(p Payload) ([]Message, error) {
	switch x := p.(type) {
	case JSONPayload:
		return normalizeJSON(x.Value)
	case *JSONPayload:
		if x == nil {
			return nil, malformed(-1, "", "nil payload")
		}
		return normalizeJSON(x.Value)
	case Messages:
		return normalizeMessages(x)
	case Records:
		return normalizeRecords(x)
	case nil:
		return nil, malformed(-1, "", "nil payload")
	default:
		return nil, malformed(-1, "", "unsupported payload type %T", p)
	}
}

func normalizeJSON(data json.RawMessage) ([]Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformed(-1, "", "empty JSON document")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed(-1, "", "invalid JSON: %v", err)
	}
	if dec.More() {
		return nil, malformed(-1, "", "trailing data after JSON value")
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, malformed(-1, "", "JSON value is %s, want array of messages", jsonKind(doc))
	}
	records := make(Records, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(i, "", "element is %s, want object", jsonKind(item))
		}
		records = append(records, rec)
	}
	return normalizeRecords(records)
}

func normalizeRecords(records Records) ([]Message, error) {
	if len(records) == 0 {
		return nil, malformed(-1, "", "no messages")
	}
	out := make([]Message, 0, len(records))
	for i, rec := range records {
		msg, err := decodeRecord(i, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// decodeRecord reads role and content (required) plus name and tool_call_id (optional).
// Text fields accept strings and JSON numbers. Other keys are ignored.
func decodeRecord(i int, rec map[string]any) (Message, error) {
	if rec == nil {
		return Message{}, malformed(i, "", "nil record")
	}
	rawRole, ok := rec["role"]
	if !ok {
		return Message{}, malformed(i, "role", "missing")
	}
	role, ok := cast.ToString(rawRole)
	if !ok {
		return Message{}, malformed(i, "role", "is %T, want string", rawRole)
	}
	rawContent, ok := rec["content"]
	if !ok {
		return Message{}, malformed(i, "content", "missing")
	}
	content, ok := cast.ToString(rawContent)
	if !ok {
		return Message{}, malformed(i, "content", "is %T, want string", rawContent)
	}
	msg := Message{Role: Role(role), Content: content}
	if !msg.Role.Valid() {
		return Message{}, malformed(i, "role", "unknown role %q", role)
	}
	for _, field := range []struct {
		key string
		dst *string
	}{{"name", &msg.Name}, {"tool_call_id", &msg.ToolCallID}} {
		v, ok := rec[field.key]
		if !ok || v == nil {
			continue
		}
		s, ok := cast.ToString(v)
		if !ok {
			return Message{}, malformed(i, field.key, "is %T, want string", v)
		}
		*field.dst = s
	}
	return msg, nil
}

func normalizeMessages(msgs Messages) ([]Message, error) {
	if len(msgs) == 0 {
		return nil, malformed(-1, "", "no messages")
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, malformed(i, "role", "unknown role %q", m.Role)
		}
	}
	return slices.Clone([]Message(msgs)), nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return "unknown"
	}
}
