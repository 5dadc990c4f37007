package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/skosovsky/chatcall"
)

const maxLine = 4 << 20

var errEmptyRow = errors.New("row has neither question nor messages")

// row is one input line. Plain text lines become a question.
type row struct {
	Question string           `json:"question"`
	Messages json.RawMessage  `json:"messages"`
	Options  chatcall.Options `json:"options"`

	err error
}

// payload returns the message input of the row.
func (r row) payload() (chatcall.Payload, error) {
	switch {
	case r.err != nil:
		return nil, r.err
	case len(r.Messages) > 0 && !bytes.Equal(r.Messages, []byte("null")):
		return chatcall.JSONPayload{Value: r.Messages}, nil
	case r.Question != "":
		return chatcall.BuildSingleQA(r.Question), nil
	default:
		return nil, errEmptyRow
	}
}

// output is one result line.
type output struct {
	Index  int             `json:"index"`
	Answer chatcall.Result `json:"answer"`
	Error  string          `json:"error,omitempty"`
}

// readRows reads non-blank lines. A line starting with '{' is decoded as a JSON row;
// a decode failure is kept on the row so it is reported in place.
func readRows(r io.Reader) ([]row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	var rows []row
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			rows = append(rows, row{Question: line})
			continue
		}
		var rw row
		dec := json.NewDecoder(bytes.NewReader([]byte(line)))
		dec.UseNumber()
		if err := dec.Decode(&rw); err != nil {
			rw = row{err: fmt.Errorf("decode row: %w", err)}
		}
		rows = append(rows, rw)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return rows, nil
}

// parseSet turns k=v pairs into adapter options. Values that parse as JSON
// (numbers, booleans, null, arrays, objects) keep their type; anything else is a string.
func parseSet(pairs []string) (chatcall.Options, error) {
	opts := make(chatcall.Options, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: want key=value", p)
		}
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		var val any
		if err := dec.Decode(&val); err != nil || dec.More() {
			val = v
		}
		opts[k] = val
	}
	return opts, nil
}
