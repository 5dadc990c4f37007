package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/skosovsky/chatcall"
	"github.com/skosovsky/chatcall/provider"
)

// Provider implements chatcall.Provider for the OpenAI Chat Completions API and any
// server compatible with it (set WithBaseURL).
type Provider struct {
	client       openai.Client
	defaultModel shared.ChatModel
	logger       *slog.Logger
}

// Option configures a Provider (e.g. WithModel).
type Option func(*settings)

type settings struct {
	model   shared.ChatModel
	reqOpts []option.RequestOption
	logger  *slog.Logger
}

// WithModel sets the model used when the call options do not contain "model".
func WithModel(m string) Option {
	return func(s *settings) { s.model = shared.ChatModel(m) } //nolint:unconvert // ChatModel is a distinct type
}

// WithAPIKey sets the instance credential. A per-call key in Request.APIKey wins.
// Without it the SDK reads OPENAI_API_KEY from the environment.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithAPIKey(key)) }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
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

// New returns a Provider with default model gpt-4o. SDK-level retries are disabled;
// retrying is the execution engine's job.
func New(opts ...Option) *Provider {
	s := settings{model: openai.ChatModelGPT4o}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	reqOpts := append([]option.RequestOption{option.WithMaxRetries(0)}, s.reqOpts...)
	return &Provider{
		client:       openai.NewClient(reqOpts...),
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
	completion, err := p.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		var apiErr *openai.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		p.logger.DebugContext(ctx, "openai request failed", slog.Int("status", status), slog.Any("error", err))
		return nil, provider.Classify(err, status)
	}
	return ParseResponse(completion), nil
}

// Translate converts req into SDK params plus the per-call request options
// (credential, timeout, extra headers, query and body fields).
func (p *Provider) Translate(req *chatcall.Request) (openai.ChatCompletionNewParams, []option.RequestOption, error) {
	mp, err := provider.ExtractParams(req.Options)
	if err != nil {
		return openai.ChatCompletionNewParams{}, nil, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
		Model:    p.defaultModel,
	}
	if mp.Model != "" {
		params.Model = shared.ChatModel(mp.Model) //nolint:unconvert // ChatModel is a distinct type
	}
	if mp.Temperature != nil {
		params.Temperature = openai.Float(*mp.Temperature)
	}
	if mp.MaxTokens != nil {
		params.MaxTokens = openai.Int(*mp.MaxTokens)
	}
	if mp.TopP != nil {
		params.TopP = openai.Float(*mp.TopP)
	}
	if mp.N != nil {
		params.N = openai.Int(*mp.N)
	}
	if mp.Seed != nil {
		params.Seed = openai.Int(*mp.Seed)
	}
	if mp.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*mp.PresencePenalty)
	}
	if mp.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*mp.FrequencyPenalty)
	}
	if len(mp.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: mp.Stop}
	}
	for _, msg := range req.Messages {
		union, err := messageToUnion(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, nil, err
		}
		params.Messages = append(params.Messages, union)
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
	// Unknown keys first so extra_body can still override them.
	for _, k := range slices.Sorted(maps.Keys(mp.Extra)) {
		reqOpts = append(reqOpts, option.WithJSONSet(k, mp.Extra[k]))
	}
	for _, k := range slices.Sorted(maps.Keys(mp.ExtraBody)) {
		reqOpts = append(reqOpts, option.WithJSONSet(k, mp.ExtraBody[k]))
	}
	return params, reqOpts, nil
}

func messageToUnion(msg chatcall.Message) (openai.ChatCompletionMessageParamUnion, error) {
	var u openai.ChatCompletionMessageParamUnion
	switch msg.Role {
	case chatcall.RoleSystem:
		u = openai.SystemMessage(msg.Content)
		if msg.Name != "" {
			u.OfSystem.Name = openai.String(msg.Name)
		}
	case chatcall.RoleDeveloper:
		u = openai.DeveloperMessage(msg.Content)
		if msg.Name != "" {
			u.OfDeveloper.Name = openai.String(msg.Name)
		}
	case chatcall.RoleUser:
		u = openai.UserMessage(msg.Content)
		if msg.Name != "" {
			u.OfUser.Name = openai.String(msg.Name)
		}
	case chatcall.RoleAssistant:
		u = openai.AssistantMessage(msg.Content)
		if msg.Name != "" {
			u.OfAssistant.Name = openai.String(msg.Name)
		}
	case chatcall.RoleTool:
		u = openai.ToolMessage(msg.Content, msg.ToolCallID)
	default:
		return u, fmt.Errorf("%w: role %q", chatcall.ErrMalformedPayload, msg.Role)
	}
	return u, nil
}

// ParseResponse reduces a completion to its choices. A choice whose message content
// was null or absent gets a nil Content.
func ParseResponse(completion *openai.ChatCompletion) *chatcall.Response {
	if completion == nil {
		return &chatcall.Response{}
	}
	out := &chatcall.Response{Choices: make([]chatcall.Choice, 0, len(completion.Choices))}
	for _, c := range completion.Choices {
		choice := chatcall.Choice{FinishReason: c.FinishReason}
		if c.Message.JSON.Content.Valid() {
			text := c.Message.Content
			choice.Content = &text
		}
		out.Choices = append(out.Choices, choice)
	}
	return out
}

// Compile-time check that Provider implements chatcall.Provider.
var _ chatcall.Provider = (*Provider)(nil)
