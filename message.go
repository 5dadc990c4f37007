package chatcall

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Role is the message role in a chat (system, developer, user, assistant, tool).
type Role string

// Chat message roles.
const (
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleDeveloper, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message is one canonical role/content record sent to the provider.
type Message struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	Name       string `json:"name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"` // set on RoleTool messages
}

// Payload is the message input of a call. It is a sealed union: only JSONPayload,
// Messages and Records implement it. Normalize decodes every variant into the same
// canonical []Message.
type Payload interface {
	isPayload()
}

// JSONPayload is the tagged structured form: a JSON document whose value is an
// array of message objects. Row-processing engines pass columns of this type.
type JSONPayload struct {
	Value json.RawMessage
}

func (JSONPayload) isPayload() {}

// MarshalJSON returns the wrapped document unchanged.
func (p JSONPayload) MarshalJSON() ([]byte, error) {
	if len(p.Value) == 0 {
		return []byte("null"), nil
	}
	return p.Value, nil
}

// UnmarshalJSON stores a copy of the document.
func (p *JSONPayload) UnmarshalJSON(data []byte) error {
	p.Value = slices.Clone(data)
	return nil
}

// Messages is the bare sequence of typed message records.
type Messages []Message

func (Messages) isPayload() {}

// Records is the bare sequence of loosely typed message records, e.g. rows decoded
// from a generic data source. Each record needs string "role" and "content" keys.
type Records []map[string]any

func (Records) isPayload() {}

// JSON wraps v (typically []Message) into the tagged form.
func JSON(v any) (JSONPayload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return JSONPayload{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return JSONPayload{Value: data}, nil
}

// MustJSON is like JSON but panics on error. Use it for values known to encode, e.g. []Message.
func MustJSON(v any) JSONPayload {
	p, err := JSON(v)
	if err != nil {
		panic(err)
	}
	return p
}

// Compile-time checks that the variants implement Payload.
var (
	_ Payload = JSONPayload{}
	_ Payload = Messages(nil)
	_ Payload = Records(nil)
)
