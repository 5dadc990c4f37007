package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/skosovsky/chatcall"
	"github.com/skosovsky/chatcall/engine"
	"github.com/skosovsky/chatcall/ext/otelchat"
	"github.com/skosovsky/chatcall/provider/anthropic"
	"github.com/skosovsky/chatcall/provider/gemini"
	"github.com/skosovsky/chatcall/provider/ollama"
	"github.com/skosovsky/chatcall/provider/openai"
)

// Runtime is the assembled call stack. Close releases external connections.
type Runtime struct {
	Adapter  *chatcall.Adapter
	Provider chatcall.Provider
	Metrics  *engine.Metrics
	closers  []func() error
}

// Close releases resources opened by Build (e.g. the Redis client).
func (r *Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// BuildOption customizes Build.
type BuildOption func(*buildSettings)

type buildSettings struct {
	logger   *slog.Logger
	registry prometheus.Registerer
	redis    engine.RedisClient
}

// WithLogger sets the logger handed to the provider, engine and adapter.
func WithLogger(l *slog.Logger) BuildOption {
	return func(s *buildSettings) { s.logger = l }
}

// WithRegisterer sets where engine metrics are registered when engine.metrics is on.
// Default is prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) BuildOption {
	return func(s *buildSettings) { s.registry = reg }
}

// WithRedisClient supplies the client for the redis cache instead of dialing
// cache.redis_addr. The caller keeps ownership of it.
func WithRedisClient(c engine.RedisClient) BuildOption {
	return func(s *buildSettings) { s.redis = c }
}

// Build assembles the provider, the execution policies and the Adapter.
// A Redis client dialed from cache.redis_addr is pinged before use.
func (c *Config) Build(ctx context.Context, opts ...BuildOption) (*Runtime, error) {
	s := buildSettings{registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	rt := &Runtime{}

	p, err := c.buildProvider(ctx, s.logger)
	if err != nil {
		return nil, err
	}
	if c.Provider.Tracing {
		p = otelchat.WrapProvider(p, otelchat.WithSystem(c.Provider.Name))
	}
	rt.Provider = p

	cache, err := c.buildCache(ctx, &s, rt)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if c.Engine.Metrics {
		rt.Metrics = engine.NewMetrics(s.registry)
	}

	adapterOpts := []chatcall.Option{
		chatcall.WithCapacity(c.Engine.Capacity),
		chatcall.WithRetryStrategy(c.Engine.Retry.strategy()),
		chatcall.WithOptions(c.Defaults),
		chatcall.WithLogger(s.logger),
		chatcall.WithEngineConfig(engine.Config[chatcall.Result]{
			RateLimit: rate.Limit(c.Engine.RateLimit),
			Burst:     c.Engine.Burst,
			Metrics:   rt.Metrics,
		}),
	}
	if cache != nil {
		adapterOpts = append(adapterOpts, chatcall.WithCacheStrategy(cache))
	}
	if c.Provider.Model != "" {
		adapterOpts = append(adapterOpts, chatcall.WithModel(c.Provider.Model))
	}
	rt.Adapter = chatcall.New(p, adapterOpts...)
	return rt, nil
}

func (c *Config) buildProvider(ctx context.Context, logger *slog.Logger) (chatcall.Provider, error) {
	switch c.Provider.Name {
	case ProviderOpenAI:
		var opts []openai.Option
		if c.Provider.APIKey != "" {
			opts = append(opts, openai.WithAPIKey(c.Provider.APIKey))
		}
		if c.Provider.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(c.Provider.BaseURL))
		}
		if c.Provider.Model != "" {
			opts = append(opts, openai.WithModel(c.Provider.Model))
		}
		return openai.New(append(opts, openai.WithLogger(logger))...), nil
	case ProviderAnthropic:
		var opts []anthropic.Option
		if c.Provider.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(c.Provider.APIKey))
		}
		if c.Provider.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(c.Provider.BaseURL))
		}
		if c.Provider.Model != "" {
			opts = append(opts, anthropic.WithModel(c.Provider.Model))
		}
		return anthropic.New(append(opts, anthropic.WithLogger(logger))...), nil
	case ProviderGemini:
		var opts []gemini.Option
		if c.Provider.APIKey != "" {
			opts = append(opts, gemini.WithAPIKey(c.Provider.APIKey))
		}
		if c.Provider.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.Provider.BaseURL))
		}
		if c.Provider.Model != "" {
			opts = append(opts, gemini.WithModel(c.Provider.Model))
		}
		p, err := gemini.New(ctx, append(opts, gemini.WithLogger(logger))...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return p, nil
	case ProviderOllama:
		var opts []ollama.Option
		if c.Provider.APIKey != "" {
			opts = append(opts, ollama.WithAPIKey(c.Provider.APIKey))
		}
		if c.Provider.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(c.Provider.BaseURL))
		}
		if c.Provider.Model != "" {
			opts = append(opts, ollama.WithModel(c.Provider.Model))
		}
		p, err := ollama.New(append(opts, ollama.WithLogger(logger))...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, c.Provider.Name)
	}
}

func (c *Config) buildCache(ctx context.Context, s *buildSettings, rt *Runtime) (engine.CacheStrategy[chatcall.Result], error) {
	switch c.Cache.Kind {
	case "", "none":
		return nil, nil
	case "memory":
		mc, err := engine.NewMemoryCache[chatcall.Result](c.Cache.Size, c.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("config: memory cache: %w", err)
		}
		return mc, nil
	case "redis":
		client := s.redis
		if client == nil {
			rc := redis.NewClient(&redis.Options{
				Addr:     c.Cache.RedisAddr,
				Password: c.Cache.RedisPassword,
				DB:       c.Cache.RedisDB,
			})
			rt.closers = append(rt.closers, rc.Close)
			if err := rc.Ping(ctx).Err(); err != nil {
				return nil, fmt.Errorf("config: redis %s: %w", c.Cache.RedisAddr, err)
			}
			client = rc
		}
		var opts []engine.RedisOption
		if c.Cache.Prefix != "" {
			opts = append(opts, engine.WithPrefix(c.Cache.Prefix))
		}
		if c.Cache.TTL > 0 {
			opts = append(opts, engine.WithTTL(c.Cache.TTL))
		}
		return engine.NewRedisCache[chatcall.Result](client, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown cache kind %q", ErrInvalidConfig, c.Cache.Kind)
	}
}

// strategy returns the configured RetryStrategy. Only errors accepted by
// chatcall.IsRetryable are retried.
func (r RetryConfig) strategy() engine.RetryStrategy {
	switch r.Strategy {
	case "fixed":
		f := engine.NewFixedDelay()
		if r.MaxRetries != nil {
			f.MaxRetries = *r.MaxRetries
		}
		if r.Delay > 0 {
			f.Delay = r.Delay
		}
		f.Retryable = chatcall.IsRetryable
		return f
	case "exponential":
		b := engine.NewExponentialBackoff()
		if r.MaxRetries != nil {
			b.MaxRetries = *r.MaxRetries
		}
		if r.InitialDelay > 0 {
			b.InitialDelay = r.InitialDelay
		}
		if r.Factor > 0 {
			b.Factor = r.Factor
		}
		if r.Jitter > 0 {
			b.Jitter = r.Jitter
		}
		b.MaxDelay = r.MaxDelay
		b.Retryable = chatcall.IsRetryable
		return b
	default:
		return engine.NoRetry{}
	}
}
