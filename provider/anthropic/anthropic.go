package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skosovsky/chatcall"
	"github.com/skosovsky/chatcall/provider"
)

const defaultMaxTokens int64 = 1024

// Provider implements chatcall.Provider for the Anthropic Messages API.
type Provider struct {
	client       anthropic.Client
	defaultModel anthropic.Model
	logger       *slog.Logger
}

// Option configures a Provider (e.g. WithModel).
type Option func(*settings)

type settings struct {
	model   anthropic.Model
	reqOpts []option.RequestOption
	logger  *slog.Logger
}

// WithModel sets the model used when the call options do not contain "model".
func WithModel(m string) Option {
	return func(s *settings) { s.model = anthropic.Model(m) }
}

// WithAPIKey sets the instance credential. A per-call key in Request.APIKey wins.
// Without it the SDK reads ANTHROPIC_API_KEY from the environment.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithAPIKey(key)) }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithBaseURL(url)) }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithHTTPClient(c)) }
}

// WithRequestOptions appends raw SDK request options applied to every call.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, opts...) }
}

// WithLogger sets the logger. Default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New returns a Provider with a default model. SDK-level retries are disabled.
func New(opts ...Option) *Provider {
	s := settings{model: anthropic.ModelClaudeSonnet4_5_20250929}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	reqOpts := append([]option.RequestOption{option.WithMaxRetries(0)}, s.reqOpts...)
	return &Provider{
		client:       anthropic.NewClient(reqOpts...),
		defaultModel: s.model,
		logger:       s.logger,
	}
}

// Complete implements chatcall.Provider.
func (p *Provider) Complete(ctx context.Context, req *chatcall.Request) (*chatcall.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", chatcall.ErrMalformedPayload)
	}
	params, reqOpts, err := p.Translate(req)
	if err != nil {
		return nil, err
	}
	msg, err := p.client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		var apiErr *anthropic.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		p.logger.DebugContext(ctx, "anthropic request failed", slog.Int("status", status), slog.Any("error", err))
		return nil, provider.Classify(err, status)
	}
	return ParseResponse(msg), nil
}

// Translate converts req into SDK params plus per-call request options.
// System and developer messages are joined into the system prompt, or into the only
// user turn when the conversation has nothing else; tool messages
// become user turns carrying a tool_result block. n, seed and the penalty options
// have no Messages API counterpart and return chatcall.ErrUnsupportedOption.
func (p *Provider) Translate(req *chatcall.Request) (anthropic.MessageNewParams, []option.RequestOption, error) {
	mp, err := provider.ExtractParams(req.Options)
	if err != nil {
		return anthropic.MessageNewParams{}, nil, err
	}
	if err := rejectUnsupported(mp); err != nil {
		return anthropic.MessageNewParams{}, nil, err
	}
	params := anthropic.MessageNewParams{
		MaxTokens: defaultMaxTokens,
		Model:     p.defaultModel,
	}
	if mp.Model != "" {
		params.Model = anthropic.Model(mp.Model)
	}
	if mp.MaxTokens != nil {
		params.MaxTokens = *mp.MaxTokens
	}
	if mp.Temperature != nil {
		params.Temperature = anthropic.Float(*mp.Temperature)
	}
	if mp.TopP != nil {
		params.TopP = anthropic.Float(*mp.TopP)
	}
	if len(mp.Stop) > 0 {
		params.StopSequences = mp.Stop
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case chatcall.RoleSystem, chatcall.RoleDeveloper:
			system = append(system, msg.Content)
		case chatcall.RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chatcall.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		case chatcall.RoleTool:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		default:
			return anthropic.MessageNewParams{}, nil, fmt.Errorf("%w: role %q", chatcall.ErrMalformedPayload, msg.Role)
		}
	}
	switch {
	case len(system) == 0:
	case len(params.Messages) == 0:
		// The API requires at least one message.
		params.Messages = []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(strings.Join(system, "\n\n")))}
	default:
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	var reqOpts []option.RequestOption
	if req.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(req.APIKey))
	}
	if mp.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(mp.Timeout))
	}
	for _, k := range slices.Sorted(maps.Keys(mp.ExtraHeaders)) {
		reqOpts = append(reqOpts, option.WithHeader(k, mp.ExtraHeaders[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(mp.ExtraQuery)) {
		reqOpts = append(reqOpts, option.WithQuery(k, mp.ExtraQuery[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(mp.Extra)) {
		reqOpts = append(reqOpts, option.WithJSONSet(k, mp.Extra[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(mp.ExtraBody)) {
		reqOpts = append(reqOpts, option.WithJSONSet(k, mp.ExtraBody[k]))
	}
	return params, reqOpts, nil
}

func rejectUnsupported(mp provider.Params) error {
	var keys []string
	if mp.N != nil && *mp.N != 1 {
		keys = append(keys, chatcall.KeyN)
	}
	if mp.Seed != nil {
		keys = append(keys, chatcall.KeySeed)
	}
	if mp.PresencePenalty != nil {
		keys = append(keys, chatcall.KeyPresencePenalty)
	}
	if mp.FrequencyPenalty != nil {
		keys = append(keys, chatcall.KeyFrequencyPenalty)
	}
	if len(keys) > 0 {
		return fmt.Errorf("%w: %s", chatcall.ErrUnsupportedOption, strings.Join(keys, ", "))
	}
	return nil
}

// ParseResponse joins the text blocks of msg into a single choice.
// A message without text blocks yields zero choices.
func ParseResponse(msg *anthropic.Message) *chatcall.Response {
	if msg == nil {
		return &chatcall.Response{}
	}
	var b strings.Builder
	found := false
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
			found = true
		}
	}
	if !found {
		return &chatcall.Response{}
	}
	text := b.String()
	return &chatcall.Response{Choices: []chatcall.Choice{{Content: &text, FinishReason: string(msg.StopReason)}}}
}

// Compile-time check that Provider implements chatcall.Provider.
var _ chatcall.Provider = (*Provider)(nil)
