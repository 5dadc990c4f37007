package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"github.com/skosovsky/chatcall"
	"github.com/skosovsky/chatcall/internal/cast"
	"github.com/skosovsky/chatcall/provider"
)

// Option keys that map onto ChatRequest fields rather than model options.
const (
	keyTools          = "tools"
	keyToolChoice     = "tool_choice"
	keyResponseFormat = "response_format"
	keyFormat         = "format"
)

// Provider implements chatcall.Provider for a local or hosted Ollama server.
type Provider struct {
	base         *url.URL
	httpClient   *http.Client
	apiKey       string
	defaultModel string
	logger       *slog.Logger
}

// Option configures a Provider (e.g. WithModel).
type Option func(*settings)

type settings struct {
	model      string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithModel sets the model used when the call options do not contain "model".
func WithModel(m string) Option {
	return func(s *settings) { s.model = m }
}

// WithBaseURL sets the server address. Default is OLLAMA_HOST or http://127.0.0.1:11434.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

// WithAPIKey sets a bearer token for hosted servers. A per-call key in
// Request.APIKey wins.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = key }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithLogger sets the logger. Default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New returns a Provider with default model "llama3.2".
func New(opts ...Option) (*Provider, error) {
	s := settings{model: "llama3.2"}
	for _, opt := range opts {
		opt(&s)
	}
	base := envconfig.Host()
	if s.baseURL != "" {
		u, err := url.Parse(s.baseURL)
		if err != nil {
			return nil, fmt.Errorf("ollama: base url: %w", err)
		}
		base = u
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return &Provider{
		base:         base,
		httpClient:   s.httpClient,
		apiKey:       s.apiKey,
		defaultModel: s.model,
		logger:       s.logger,
	}, nil
}

// Complete implements chatcall.Provider.
func (p *Provider) Complete(ctx context.Context, req *chatcall.Request) (*chatcall.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", chatcall.ErrMalformedPayload)
	}
	chatReq, mp, err := p.translate(req)
	if err != nil {
		return nil, err
	}
	if mp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mp.Timeout)
		defer cancel()
	}

	key := p.apiKey
	if req.APIKey != "" {
		key = req.APIKey
	}
	tr := p.transportFor(key, mp)
	client := api.NewClient(p.base, tr.client(p.httpClient))

	var resp *api.ChatResponse
	err = client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = &r
		return nil
	})
	if err != nil {
		status := tr.status
		var se api.StatusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		if status < http.StatusBadRequest {
			status = 0
		}
		p.logger.DebugContext(ctx, "ollama request failed", slog.Int("status", status), slog.Any("error", err))
		return nil, provider.Classify(err, status)
	}
	return ParseResponse(resp), nil
}

// Translate converts req into an Ollama chat request. "tools" become request tools,
// "format" or "response_format" the output format; "tool_choice" has no Ollama
// counterpart and returns chatcall.ErrUnsupportedOption. Other unknown keys are
// forwarded as model options.
func (p *Provider) Translate(req *chatcall.Request) (*api.ChatRequest, error) {
	r, _, err := p.translate(req)
	return r, err
}

func (p *Provider) translate(req *chatcall.Request) (*api.ChatRequest, provider.Params, error) {
	mp, err := provider.ExtractParams(req.Options)
	if err != nil {
		return nil, provider.Params{}, err
	}
	if mp.N != nil && *mp.N != 1 {
		return nil, provider.Params{}, fmt.Errorf("%w: %s", chatcall.ErrUnsupportedOption, chatcall.KeyN)
	}
	if len(mp.ExtraBody) > 0 {
		return nil, provider.Params{}, fmt.Errorf("%w: %s", chatcall.ErrUnsupportedOption, chatcall.KeyExtraBody)
	}

	stream := false
	out := &api.ChatRequest{
		Model:    p.defaultModel,
		Messages: make([]api.Message, 0, len(req.Messages)),
		Stream:   &stream,
	}
	if mp.Model != "" {
		out.Model = mp.Model
	}
	if err := requestFields(out, mp.Extra); err != nil {
		return nil, provider.Params{}, err
	}
	out.Options = modelOptions(mp)

	for _, msg := range req.Messages {
		switch msg.Role {
		case chatcall.RoleSystem, chatcall.RoleDeveloper:
			out.Messages = append(out.Messages, api.Message{Role: "system", Content: msg.Content})
		case chatcall.RoleUser:
			out.Messages = append(out.Messages, api.Message{Role: "user", Content: msg.Content})
		case chatcall.RoleAssistant:
			out.Messages = append(out.Messages, api.Message{Role: "assistant", Content: msg.Content})
		case chatcall.RoleTool:
			out.Messages = append(out.Messages, api.Message{
				Role:       "tool",
				Content:    msg.Content,
				ToolName:   msg.Name,
				ToolCallID: msg.ToolCallID,
			})
		default:
			return nil, provider.Params{}, fmt.Errorf("%w: role %q", chatcall.ErrMalformedPayload, msg.Role)
		}
	}
	return out, mp, nil
}

func requestFields(out *api.ChatRequest, extra map[string]any) error {
	if _, ok := extra[keyToolChoice]; ok {
		return fmt.Errorf("%w: %s", chatcall.ErrUnsupportedOption, keyToolChoice)
	}
	if v, ok := extra[keyTools]; ok {
		tools, err := translateTools(v)
		if err != nil {
			return err
		}
		out.Tools = tools
	}
	if v, ok := extra[keyFormat]; ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%w: %q: %w", chatcall.ErrInvalidOption, keyFormat, err)
		}
		out.Format = raw
		return nil
	}
	if v, ok := extra[keyResponseFormat]; ok {
		raw, err := responseFormat(v)
		if err != nil {
			return err
		}
		out.Format = raw
	}
	return nil
}

// translateTools decodes function tools given in the chat completions shape.
func translateTools(v any) (api.Tools, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", chatcall.ErrInvalidOption, keyTools, err)
	}
	var tools api.Tools
	if err := json.Unmarshal(b, &tools); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", chatcall.ErrInvalidOption, keyTools, err)
	}
	for i := range tools {
		if tools[i].Type == "" {
			tools[i].Type = "function"
		}
		if tools[i].Function.Parameters.Properties == nil {
			tools[i].Function.Parameters.Properties = api.NewToolPropertiesMap()
		}
	}
	return tools, nil
}

// responseFormat maps {"type": "text" | "json_object" | "json_schema"} onto the
// Ollama format field: nothing, "json" or the schema itself.
func responseFormat(v any) (json.RawMessage, error) {
	m, ok := cast.ToMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: %q has unexpected type %T", chatcall.ErrInvalidOption, keyResponseFormat, v)
	}
	typ, _ := cast.ToString(m["type"])
	switch typ {
	case "text":
		return nil, nil
	case "json_object":
		return json.RawMessage(`"json"`), nil
	case "json_schema":
		js, _ := cast.ToMap(m["json_schema"])
		if schema := js["schema"]; schema != nil {
			raw, err := json.Marshal(schema)
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %w", chatcall.ErrInvalidOption, keyResponseFormat, err)
			}
			return raw, nil
		}
		return nil, fmt.Errorf("%w: %q: json_schema.schema is missing", chatcall.ErrInvalidOption, keyResponseFormat)
	default:
		return nil, fmt.Errorf("%w: %q: unknown type %q", chatcall.ErrInvalidOption, keyResponseFormat, typ)
	}
}

func modelOptions(mp provider.Params) map[string]any {
	opts := make(map[string]any, len(mp.Extra)+7)
	for k, v := range mp.Extra {
		switch k {
		case keyTools, keyResponseFormat, keyFormat:
		default:
			opts[k] = v
		}
	}
	if mp.Temperature != nil {
		opts["temperature"] = *mp.Temperature
	}
	if mp.MaxTokens != nil {
		opts["num_predict"] = *mp.MaxTokens
	}
	if mp.TopP != nil {
		opts["top_p"] = *mp.TopP
	}
	if len(mp.Stop) > 0 {
		opts["stop"] = mp.Stop
	}
	if mp.Seed != nil {
		opts["seed"] = *mp.Seed
	}
	if mp.PresencePenalty != nil {
		opts["presence_penalty"] = *mp.PresencePenalty
	}
	if mp.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *mp.FrequencyPenalty
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// transportFor returns the per-call transport. It adds the bearer token and extra
// headers or query parameters and records the response status.
func (p *Provider) transportFor(key string, mp provider.Params) *callTransport {
	next := p.httpClient.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	return &callTransport{next: next, key: key, headers: mp.ExtraHeaders, query: mp.ExtraQuery}
}

type callTransport struct {
	next    http.RoundTripper
	key     string
	headers map[string]string
	query   map[string]string
	status  int
}

func (t *callTransport) client(base *http.Client) *http.Client {
	c := *base
	c.Transport = t
	return &c
}

func (t *callTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	if t.key != "" {
		r.Header.Set("Authorization", "Bearer "+t.key)
	}
	if len(t.query) > 0 {
		q := r.URL.Query()
		for k, v := range t.query {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
	resp, err := t.next.RoundTrip(r)
	if resp != nil {
		t.status = resp.StatusCode
	}
	return resp, err
}

// ParseResponse turns the final chat response into a single choice. A reply that
// carries only tool calls yields zero choices.
func ParseResponse(resp *api.ChatResponse) *chatcall.Response {
	if resp == nil {
		return &chatcall.Response{}
	}
	if strings.TrimSpace(resp.Message.Content) == "" && len(resp.Message.ToolCalls) > 0 {
		return &chatcall.Response{}
	}
	text := resp.Message.Content
	return &chatcall.Response{Choices: []chatcall.Choice{{Content: &text, FinishReason: resp.DoneReason}}}
}

// Compile-time check that Provider implements chatcall.Provider.
var _ chatcall.Provider = (*Provider)(nil)
