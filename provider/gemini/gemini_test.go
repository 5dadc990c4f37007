package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/genai"

	"github.com/skosovsky/chatcall"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type captured struct {
	path   string
	key    string
	header http.Header
	body   map[string]any
}

type fakeServer struct {
	*httptest.Server
	mu   sync.Mutex
	reqs []captured
}

func newFakeServer(t *testing.T, status int, reply string) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		fs.mu.Lock()
		fs.reqs = append(fs.reqs, captured{
			path:   r.URL.Path,
			key:    r.Header.Get("X-Goog-Api-Key"),
			header: r.Header.Clone(),
			body:   body,
		})
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) requests() []captured {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]captured(nil), fs.reqs...)
}

func (fs *fakeServer) provider(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	base := []Option{WithBaseURL(fs.URL), WithHTTPClient(fs.Client()), WithAPIKey("instance-key"), WithModel("gemini-test")}
	p, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	return p
}

func candidatesJSON(texts ...string) string {
	cands := make([]string, 0, len(texts))
	for i, text := range texts {
		cands = append(cands, fmt.Sprintf(
			`{"content":{"role":"model","parts":[{"text":%q}]},"finishReason":"STOP","index":%d}`, text, i))
	}
	return `{"candidates":[` + strings.Join(cands, ",") + `],"modelVersion":"gemini-test"}`
}

func ExampleProvider_Translate() {
	p, _ := New(context.Background(), WithAPIKey("example-key"))
	req, _ := p.Translate(&chatcall.Request{
		Messages: []chatcall.Message{{Role: chatcall.RoleSystem, Content: "Wazzup?"}},
	})
	fmt.Println(req.Model, len(req.Contents), req.Contents[0].Role, req.Contents[0].Parts[0].Text)
	// Output: gemini-2.5-flash 1 user Wazzup?
}

func TestTranslate_Roles(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), WithAPIKey("k"))
	require.NoError(t, err)

	req, err := p.Translate(&chatcall.Request{Messages: []chatcall.Message{
		{Role: chatcall.RoleSystem, Content: "be brief"},
		{Role: chatcall.RoleDeveloper, Content: "no markdown"},
		{Role: chatcall.RoleUser, Content: "hi"},
		{Role: chatcall.RoleAssistant, Content: "hello"},
		{Role: chatcall.RoleTool, Content: "42", ToolCallID: "calc"},
	}})
	require.NoError(t, err)

	require.NotNil(t, req.Config.SystemInstruction)
	assert.Equal(t, "be brief\n\nno markdown", req.Config.SystemInstruction.Parts[0].Text)
	require.Len(t, req.Contents, 3)
	assert.Equal(t, string(genai.RoleUser), req.Contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), req.Contents[1].Role)
	fr := req.Contents[2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, "calc", fr.Name)
	assert.Equal(t, map[string]any{"result": "42"}, fr.Response)
}

func TestTranslate_Options(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), WithAPIKey("k"))
	require.NoError(t, err)

	req, err := p.Translate(&chatcall.Request{
		Messages: []chatcall.Message{{Role: chatcall.RoleUser, Content: "q"}},
		Options: chatcall.Options{
			"model":             "gemini-pro",
			"temperature":       0.5,
			"top_p":             0.25,
			"max_tokens":        int64(1) << 40,
			"stop":              []any{"a", "b"},
			"n":                 2,
			"seed":              3,
			"presence_penalty":  0.5,
			"frequency_penalty": json.Number("1"),
		},
	})
	require.NoError(t, err)
	c := req.Config
	assert.Equal(t, "gemini-pro", req.Model)
	assert.InDelta(t, 0.5, *c.Temperature, 1e-6)
	assert.InDelta(t, 0.25, *c.TopP, 1e-6)
	assert.Equal(t, int32(2147483647), c.MaxOutputTokens)
	assert.Equal(t, []string{"a", "b"}, c.StopSequences)
	assert.Equal(t, int32(2), c.CandidateCount)
	assert.Equal(t, int32(3), *c.Seed)
	assert.InDelta(t, 0.5, *c.PresencePenalty, 1e-6)
	assert.InDelta(t, 1.0, *c.FrequencyPenalty, 1e-6)
}

func TestTranslate_Rejects(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), WithAPIKey("k"))
	require.NoError(t, err)
	msgs := []chatcall.Message{{Role: chatcall.RoleUser, Content: "q"}}

	tests := []struct {
		name string
		opts chatcall.Options
		want error
	}{
		{"unknown key", chatcall.Options{"logprobs": true}, chatcall.ErrUnsupportedOption},
		{"extra query", chatcall.Options{"extra_query": map[string]string{"a": "b"}}, chatcall.ErrUnsupportedOption},
		{"extra body", chatcall.Options{"extra_body": map[string]any{"a": 1}}, chatcall.ErrUnsupportedOption},
		{"seed overflow", chatcall.Options{"seed": int64(1) << 40}, chatcall.ErrInvalidOption},
		{"bad n", chatcall.Options{"n": "two"}, chatcall.ErrInvalidOption},
		{"zero max tokens", chatcall.Options{"max_tokens": 0}, chatcall.ErrInvalidOption},
		{"max tokens underflow", chatcall.Options{"max_tokens": -(int64(1) << 40)}, chatcall.ErrInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.Translate(&chatcall.Request{Messages: msgs, Options: tt.opts})
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err = p.Translate(&chatcall.Request{Messages: []chatcall.Message{{Role: "narrator", Content: "x"}}})
	require.ErrorIs(t, err, chatcall.ErrMalformedPayload)
}

func TestComplete_Wire(t *testing.T) {
	t.Parallel()
	fs := newFakeServer(t, http.StatusOK, candidatesJSON("pong", "second"))
	a := chatcall.New(fs.provider(t))

	res, err := a.Call(context.Background(), chatcall.BuildSingleQA("ping"), chatcall.Options{
		"temperature":   0,
		"n":             2,
		"extra_headers": map[string]string{"X-Trace": "t1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", res.Text)

	reqs := fs.requests()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.True(t, strings.HasSuffix(got.path, "/models/gemini-test:generateContent"), got.path)
	assert.Equal(t, "instance-key", got.key)
	assert.Equal(t, "t1", got.header.Get("X-Trace"))
	assert.NotContains(t, got.body, "systemInstruction")
	contents, ok := got.body["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 1)
}

func TestComplete_PerCallAPIKey(t *testing.T) {
	t.Parallel()
	fs := newFakeServer(t, http.StatusOK, candidatesJSON("ok"))
	a := chatcall.New(fs.provider(t))

	_, err := a.Call(context.Background(), chatcall.BuildSingleQA("q"), chatcall.Options{"api_key": "call-key"})
	require.NoError(t, err)
	_, err = a.Call(context.Background(), chatcall.BuildSingleQA("q2"), nil)
	require.NoError(t, err)

	reqs := fs.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "call-key", reqs[0].key)
	assert.Equal(t, "instance-key", reqs[1].key)
	assert.NotContains(t, fmt.Sprint(reqs[0].body), "call-key")
}

func TestComplete_NoCandidatesIsAbsent(t *testing.T) {
	t.Parallel()
	fs := newFakeServer(t, http.StatusOK, `{"candidates":[]}`)
	a := chatcall.New(fs.provider(t))

	res, err := a.Call(context.Background(), chatcall.BuildSingleQA("q"), nil)
	require.NoError(t, err)
	assert.False(t, res.Valid())
}

func TestComplete_ErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status int
		state  string
		want   error
	}{
		{http.StatusForbidden, "PERMISSION_DENIED", chatcall.ErrAuthentication},
		{http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", chatcall.ErrRateLimited},
		{http.StatusBadRequest, "INVALID_ARGUMENT", chatcall.ErrProvider},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			t.Parallel()
			reply := fmt.Sprintf(`{"error":{"code":%d,"message":"nope","status":%q}}`, tt.status, tt.state)
			fs := newFakeServer(t, tt.status, reply)
			_, err := fs.provider(t).Complete(context.Background(), &chatcall.Request{
				Messages: []chatcall.Message{{Role: chatcall.RoleUser, Content: "q"}},
			})
			require.ErrorIs(t, err, tt.want)
			var pe *chatcall.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestComplete_ContextCanceled(t *testing.T) {
	t.Parallel()
	fs := newFakeServer(t, http.StatusOK, candidatesJSON("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fs.provider(t).Complete(ctx, &chatcall.Request{
		Messages: []chatcall.Message{{Role: chatcall.RoleUser, Content: "q"}},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseResponse(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ParseResponse(nil).Choices)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "Hel"},
			{Text: "lo"},
		}}, FinishReason: genai.FinishReasonStop},
		{Content: &genai.Content{Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: "f"}}}}},
	}}
	out := ParseResponse(resp)
	require.Len(t, out.Choices, 2)
	assert.Equal(t, "Hello", *out.Choices[0].Content)
	assert.Equal(t, "STOP", out.Choices[0].FinishReason)
	assert.Nil(t, out.Choices[1].Content)
}
