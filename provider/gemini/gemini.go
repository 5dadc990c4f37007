package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"net/http"
	"slices"
	"strings"

	"google.golang.org/genai"

	"github.com/skosovsky/chatcall"
	"github.com/skosovsky/chatcall/provider"
)

// Provider implements chatcall.Provider for the Gemini API.
type Provider struct {
	client       *genai.Client
	cc           genai.ClientConfig
	defaultModel string
	logger       *slog.Logger
}

// Option configures a Provider (e.g. WithModel).
type Option func(*settings)

type settings struct {
	model  string
	cc     genai.ClientConfig
	logger *slog.Logger
}

// WithModel sets the model used when the call options do not contain "model".
func WithModel(m string) Option {
	return func(s *settings) { s.model = m }
}

// WithAPIKey sets the instance credential. A per-call key in Request.APIKey wins.
// Without it the SDK reads GOOGLE_API_KEY or GEMINI_API_KEY from the environment.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.cc.APIKey = key }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.cc.HTTPOptions.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.cc.HTTPClient = c }
}

// WithLogger sets the logger. Default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New returns a Provider with default model "gemini-2.5-flash". It fails when no
// API key is configured.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	s := settings{model: "gemini-2.5-flash"}
	for _, opt := range opts {
		opt(&s)
	}
	s.cc.Backend = genai.BackendGeminiAPI
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	client, err := genai.NewClient(ctx, &s.cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Provider{client: client, cc: s.cc, defaultModel: s.model, logger: s.logger}, nil
}

// Request is the translated call: model, contents and generation config.
type Request struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// Complete implements chatcall.Provider.
func (p *Provider) Complete(ctx context.Context, req *chatcall.Request) (*chatcall.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", chatcall.ErrMalformedPayload)
	}
	greq, mp, err := p.translate(req)
	if err != nil {
		return nil, err
	}
	if mp.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mp.Timeout)
		defer cancel()
	}
	client, err := p.clientFor(ctx, req.APIKey, mp.ExtraHeaders)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateContent(ctx, greq.Model, greq.Contents, greq.Config)
	if err != nil {
		status := statusOf(err)
		p.logger.DebugContext(ctx, "gemini request failed", slog.Int("status", status), slog.Any("error", err))
		return nil, provider.Classify(err, status)
	}
	return ParseResponse(resp), nil
}

func statusOf(err error) int {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) {
		return ptr.Code
	}
	return 0
}

// clientFor returns the shared client, or a call-scoped one when the call carries
// its own credential or extra headers.
func (p *Provider) clientFor(ctx context.Context, key string, headers map[string]string) (*genai.Client, error) {
	if key == "" && len(headers) == 0 {
		return p.client, nil
	}
	cc := p.cc
	if key != "" {
		cc.APIKey = key
	}
	if len(headers) > 0 {
		h := cc.HTTPOptions.Headers.Clone()
		if h == nil {
			h = make(http.Header, len(headers))
		}
		for _, k := range slices.Sorted(maps.Keys(headers)) {
			h.Set(k, headers[k])
		}
		cc.HTTPOptions.Headers = h
	}
	client, err := genai.NewClient(ctx, &cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return client, nil
}

// Translate converts req into the model name, contents and generation config.
// A conversation made only of system messages is sent as one user turn.
// Options without a Gemini counterpart ("extra_query", "extra_body" and unknown
// keys) return chatcall.ErrUnsupportedOption.
func (p *Provider) Translate(req *chatcall.Request) (*Request, error) {
	r, _, err := p.translate(req)
	return r, err
}

func (p *Provider) translate(req *chatcall.Request) (*Request, provider.Params, error) {
	mp, err := provider.ExtractParams(req.Options)
	if err != nil {
		return nil, provider.Params{}, err
	}
	if err := rejectUnsupported(mp); err != nil {
		return nil, provider.Params{}, err
	}
	config, err := generationConfig(mp)
	if err != nil {
		return nil, provider.Params{}, err
	}
	out := &Request{Model: p.defaultModel, Config: config}
	if mp.Model != "" {
		out.Model = mp.Model
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case chatcall.RoleSystem, chatcall.RoleDeveloper:
			system = append(system, msg.Content)
		case chatcall.RoleUser:
			out.Contents = append(out.Contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case chatcall.RoleAssistant:
			out.Contents = append(out.Contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		case chatcall.RoleTool:
			name := msg.Name
			if name == "" {
				name = msg.ToolCallID
			}
			part := genai.NewPartFromFunctionResponse(name, map[string]any{"result": msg.Content})
			out.Contents = append(out.Contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		default:
			return nil, provider.Params{}, fmt.Errorf("%w: role %q", chatcall.ErrMalformedPayload, msg.Role)
		}
	}
	switch {
	case len(system) == 0:
	case len(out.Contents) == 0:
		// The API requires at least one content.
		out.Contents = []*genai.Content{genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)}
	default:
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return out, mp, nil
}

func rejectUnsupported(mp provider.Params) error {
	var keys []string
	if len(mp.ExtraQuery) > 0 {
		keys = append(keys, chatcall.KeyExtraQuery)
	}
	if len(mp.ExtraBody) > 0 {
		keys = append(keys, chatcall.KeyExtraBody)
	}
	keys = append(keys, slices.Sorted(maps.Keys(mp.Extra))...)
	if len(keys) > 0 {
		return fmt.Errorf("%w: %s", chatcall.ErrUnsupportedOption, strings.Join(keys, ", "))
	}
	return nil
}

func generationConfig(mp provider.Params) (*genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	if mp.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*mp.Temperature))
	}
	if mp.TopP != nil {
		config.TopP = genai.Ptr(float32(*mp.TopP))
	}
	if mp.PresencePenalty != nil {
		config.PresencePenalty = genai.Ptr(float32(*mp.PresencePenalty))
	}
	if mp.FrequencyPenalty != nil {
		config.FrequencyPenalty = genai.Ptr(float32(*mp.FrequencyPenalty))
	}
	if mp.MaxTokens != nil {
		if *mp.MaxTokens < 1 {
			return nil, fmt.Errorf("%w: %q must be positive", chatcall.ErrInvalidOption, chatcall.KeyMaxTokens)
		}
		config.MaxOutputTokens = int32(min(*mp.MaxTokens, math.MaxInt32))
	}
	if len(mp.Stop) > 0 {
		config.StopSequences = mp.Stop
	}
	if mp.N != nil {
		n, err := toInt32(chatcall.KeyN, *mp.N)
		if err != nil {
			return nil, err
		}
		config.CandidateCount = n
	}
	if mp.Seed != nil {
		seed, err := toInt32(chatcall.KeySeed, *mp.Seed)
		if err != nil {
			return nil, err
		}
		config.Seed = &seed
	}
	return config, nil
}

func toInt32(key string, v int64) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %q out of int32 range", chatcall.ErrInvalidOption, key)
	}
	return int32(v), nil
}

// ParseResponse turns every candidate into a choice holding its joined text parts.
// A candidate without text parts has nil content.
func ParseResponse(resp *genai.GenerateContentResponse) *chatcall.Response {
	out := &chatcall.Response{}
	if resp == nil {
		return out
	}
	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		choice := chatcall.Choice{FinishReason: string(c.FinishReason)}
		if c.Content != nil {
			var b strings.Builder
			found := false
			for _, part := range c.Content.Parts {
				if part == nil || part.Thought || part.Text == "" {
					continue
				}
				b.WriteString(part.Text)
				found = true
			}
			if found {
				text := b.String()
				choice.Content = &text
			}
		}
		out.Choices = append(out.Choices, choice)
	}
	return out
}

// Compile-time check that Provider implements chatcall.Provider.
var _ chatcall.Provider = (*Provider)(nil)
