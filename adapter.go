package chatcall

import (
	"context"
	"log/slog"

	"github.com/skosovsky/chatcall/engine"
)

// Policies are the execution hooks stored by an Adapter and forwarded, unmodified,
// to the execution engine.
type Policies struct {
	Capacity int
	Retry    engine.RetryStrategy
	Cache    engine.CacheStrategy[Result]
}

// Adapter turns a payload plus per-call overrides into one chat-completion request,
// dispatches it through the execution engine and extracts the answer text.
// It holds no mutable state after New; Call is safe for concurrent use.
type Adapter struct {
	provider  Provider
	config    Options
	policies  Policies
	exec      engine.Executor[Result]
	engineCfg engine.Config[Result]
	logger    *slog.Logger
}

// New creates an Adapter for p. Panics if p is nil.
// Without WithExecutor the Adapter builds an engine.Engine from its policies.
func New(p Provider, opts ...Option) *Adapter {
	if p == nil {
		panic("chatcall: Provider must not be nil")
	}
	a := &Adapter{
		provider: p,
		config:   make(Options),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.exec == nil {
		cfg := a.engineCfg
		cfg.Capacity = a.policies.Capacity
		cfg.Retry = a.policies.Retry
		cfg.Cache = a.policies.Cache
		if cfg.Logger == nil {
			cfg.Logger = a.logger
		}
		a.exec = engine.New(cfg)
	}
	a.engineCfg = engine.Config[Result]{}
	return a
}

// Config returns a copy of the base configuration.
func (a *Adapter) Config() Options {
	return a.config.Clone()
}

// Policies returns the stored capacity, retry and cache hooks.
func (a *Adapter) Policies() Policies {
	return a.policies
}

// Call normalizes payload, merges overrides over the base configuration and performs
// exactly one logical request through the execution engine.
//
// Malformed payloads and invalid options fail before any network activity.
// Zero choices or null content yield the absence marker with a nil error.
// Provider and context errors are returned as they are.
func (a *Adapter) Call(ctx context.Context, payload Payload, overrides Options) (Result, error) {
	msgs, err := Normalize(payload)
	if err != nil {
		return Absent(), err
	}
	opts, apiKey, err := SplitAPIKey(Merge(a.config, overrides))
	if err != nil {
		return Absent(), err
	}
	req := &Request{Messages: msgs, Options: opts, APIKey: apiKey}
	key, err := RequestKey(req)
	if err != nil {
		return Absent(), err
	}
	a.logger.DebugContext(ctx, "dispatching chat completion",
		slog.String("model", req.Model()),
		slog.Int("messages", len(msgs)),
		slog.Bool("api_key_override", apiKey != ""))
	if apiKey != "" {
		ctx = engine.WithFlightScope(ctx, credentialScope(apiKey))
	}
	return a.exec.Execute(ctx, key, func(ctx context.Context) (Result, error) {
		resp, err := a.provider.Complete(ctx, req)
		if err != nil {
			return Absent(), err
		}
		return resultFromResponse(resp), nil
	})
}

// CallFunc returns Call bound to a fixed override set. overrides is copied.
func (a *Adapter) CallFunc(overrides Options) func(context.Context, Payload) (Result, error) {
	fixed := overrides.Clone()
	return func(ctx context.Context, payload Payload) (Result, error) {
		return a.Call(ctx, payload, fixed)
	}
}
