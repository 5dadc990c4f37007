package chatcall

import (
	"bytes"
	"encoding/json"
)

// Result is the outcome of a successful call: the text of the first choice, or the
// absence marker when the provider produced no choices or null content.
// The zero value is the absence marker.
type Result struct {
	Text  string
	valid bool
}

// Text returns a present Result holding s. s may be empty.
func Text(s string) Result {
	return Result{Text: s, valid: true}
}

// Absent returns the absence marker.
func Absent() Result {
	return Result{}
}

// Valid reports whether the provider returned content.
func (r Result) Valid() bool { return r.valid }

// Ptr returns a pointer to the text, or nil for the absence marker.
func (r Result) Ptr() *string {
	if !r.valid {
		return nil
	}
	s := r.Text
	return &s
}

// String implements fmt.Stringer.
func (r Result) String() string {
	if !r.valid {
		return "<absent>"
	}
	return r.Text
}

// MarshalJSON encodes the text as a JSON string and the absence marker as null.
func (r Result) MarshalJSON() ([]byte, error) {
	if !r.valid {
		return []byte("null"), nil
	}
	return json.Marshal(r.Text)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Result) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = Absent()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Text(s)
	return nil
}

// resultFromResponse takes the content of the first choice.
func resultFromResponse(resp *Response) Result {
	if resp == nil || len(resp.Choices) == 0 {
		return Absent()
	}
	c := resp.Choices[0].Content
	if c == nil {
		return Absent()
	}
	return Text(*c)
}
