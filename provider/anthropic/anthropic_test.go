package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/chatcall"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	*httptest.Server
	mu      sync.Mutex
	keys    []string
	bodies  []map[string]any
	headers []http.Header
}

func newRecorder(t *testing.T, status int, reply string) *recorder {
	t.Helper()
	rec := &recorder{}
	rec.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		rec.mu.Lock()
		rec.keys = append(rec.keys, r.Header.Get("X-Api-Key"))
		rec.bodies = append(rec.bodies, body)
		rec.headers = append(rec.headers, r.Header.Clone())
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(rec.Close)
	return rec
}

func (rec *recorder) provider() *Provider {
	return New(WithBaseURL(rec.URL), WithHTTPClient(rec.Client()), WithAPIKey("sk-ant-instance"))
}

func messageJSON(content string) string {
	return fmt.Sprintf(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
		"content":%s,"stop_reason":"end_turn","stop_sequence":null,
		"usage":{"input_tokens":3,"output_tokens":2}}`, content)
}

func ExampleProvider_Translate() {
	p := New(WithAPIKey("sk-ant-example"))
	params, _, _ := p.Translate(&chatcall.Request{
		Messages: []chatcall.Message{{Role: chatcall.RoleSystem, Content: "Wazzup?"}},
	})
	fmt.Println(len(params.System), len(params.Messages), params.Messages[0].Content[0].OfText.Text, params.MaxTokens)
	// Output: 0 1 Wazzup? 1024
}

func TestTranslate_Roles(t *testing.T) {
	t.Parallel()
	p := New(WithAPIKey("sk-test"), WithModel("claude-test"))
	params, _, err := p.Translate(&chatcall.Request{Messages: []chatcall.Message{
		{Role: chatcall.RoleSystem, Content: "be brief"},
		{Role: chatcall.RoleDeveloper, Content: "no markdown"},
		{Role: chatcall.RoleUser, Content: "hi"},
		{Role: chatcall.RoleAssistant, Content: "hello"},
		{Role: chatcall.RoleTool, Content: "42", ToolCallID: "toolu_1"},
	}})
	require.NoError(t, err)
	assert.Equal(t, anthropic.Model("claude-test"), params.Model)
	require.Len(t, params.System, 1)
	assert.Equal(t, "be brief\n\nno markdown", params.System[0].Text)
	require.Len(t, params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	require.Len(t, params.Messages[2].Content, 1)
	require.NotNil(t, params.Messages[2].Content[0].OfToolResult)
	assert.Equal(t, "toolu_1", params.Messages[2].Content[0].OfToolResult.ToolUseID)
}

func TestTranslate_Options(t *testing.T) {
	t.Parallel()
	p := New(WithAPIKey("sk-test"))
	params, _, err := p.Translate(&chatcall.Request{
		Messages: []chatcall.Message{{Role: chatcall.RoleUser, Content: "hi"}},
		Options: chatcall.Options{
			"model":       "claude-other",
			"max_tokens":  500,
			"temperature": 0.3,
			"top_p":       0.8,
			"stop":        []any{"###"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, anthropic.Model("claude-other"), params.Model)
	assert.Equal(t, int64(500), params.MaxTokens)
	assert.True(t, params.Temperature.Valid())
	assert.InDelta(t, 0.3, params.Temperature.Value, 1e-9)
	assert.InDelta(t, 0.8, params.TopP.Value, 1e-9)
	assert.Equal(t, []string{"###"}, params.StopSequences)
}

func TestTranslate_UnsupportedOptions(t *testing.T) {
	t.Parallel()
	p := New(WithAPIKey("sk-test"))
	msgs := []chatcall.Message{{Role: chatcall.RoleUser, Content: "hi"}}
	for _, opts := range []chatcall.Options{
		{"n": 2},
		{"seed": 1},
		{"presence_penalty": 0.1},
		{"frequency_penalty": 0.1},
		{"stream": true},
	} {
		_, _, err := p.Translate(&chatcall.Request{Messages: msgs, Options: opts})
		require.ErrorIs(t, err, chatcall.ErrUnsupportedOption, "%v", opts)
	}
	_, _, err := p.Translate(&chatcall.Request{Messages: msgs, Options: chatcall.Options{"n": 1}})
	require.NoError(t, err)
}

func TestComplete_Wire(t *testing.T) {
	t.Parallel()
	rec := newRecorder(t, http.StatusOK, messageJSON(`[{"type":"text","text":"Hel"},{"type":"text","text":"lo"}]`))
	a := chatcall.New(rec.provider(), chatcall.WithModel("claude-test"))

	res, err := a.Call(context.Background(), chatcall.BuildSingleQA("Wazzup?"), chatcall.Options{
		"api_key":       "sk-ant-call",
		"metadata":      map[string]any{"user_id": "u1"},
		"extra_headers": map[string]string{"Anthropic-Beta": "test-beta"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.bodies, 1)
	assert.Equal(t, "sk-ant-call", rec.keys[0])
	assert.Equal(t, "test-beta", rec.headers[0].Get("Anthropic-Beta"))
	body := rec.bodies[0]
	assert.NotContains(t, body, "api_key")
	assert.Equal(t, "claude-test", body["model"])
	assert.Equal(t, map[string]any{"user_id": "u1"}, body["metadata"])
	assert.NotContains(t, body, "extra_headers")
	assert.NotContains(t, body, "system")
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestComplete_NoTextBlocksIsAbsent(t *testing.T) {
	t.Parallel()
	rec := newRecorder(t, http.StatusOK, messageJSON(`[]`))
	a := chatcall.New(rec.provider())

	res, err := a.Call(context.Background(), chatcall.BuildSingleQA("q"), nil)
	require.NoError(t, err)
	assert.False(t, res.Valid())
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()
	const reply = `{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`
	tests := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, chatcall.ErrAuthentication},
		{http.StatusTooManyRequests, chatcall.ErrRateLimited},
		{http.StatusServiceUnavailable, chatcall.ErrProvider},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			rec := newRecorder(t, tt.status, reply)
			_, err := rec.provider().Complete(context.Background(), &chatcall.Request{
				Messages: []chatcall.Message{{Role: chatcall.RoleUser, Content: "hi"}},
			})
			require.ErrorIs(t, err, tt.kind)
			var apiErr *anthropic.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
		})
	}
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ParseResponse(nil).Choices)

	var msg anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(messageJSON(`[{"type":"text","text":"ok"}]`)), &msg))
	resp := ParseResponse(&msg)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "ok", *resp.Choices[0].Content)
	assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
}
