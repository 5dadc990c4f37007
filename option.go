package chatcall

import (
	"log/slog"
	"maps"

	"github.com/skosovsky/chatcall/engine"
)

// Option configures an Adapter (functional options pattern).
type Option func(*Adapter)

// WithCapacity bounds concurrent in-flight calls. It is forwarded to the execution
// engine; n <= 0 means unbounded.
func WithCapacity(n int) Option {
	return func(a *Adapter) {
		a.policies.Capacity = n
	}
}

// WithRetryStrategy sets the retry policy forwarded to the execution engine.
func WithRetryStrategy(s engine.RetryStrategy) Option {
	return func(a *Adapter) {
		a.policies.Retry = s
	}
}

// WithCacheStrategy sets the cache policy forwarded to the execution engine.
func WithCacheStrategy(s engine.CacheStrategy[Result]) Option {
	return func(a *Adapter) {
		a.policies.Cache = s
	}
}

// WithModel stores model under the "model" key of the base configuration.
// Without it "model" stays unset and must come from overrides or the provider default.
func WithModel(model string) Option {
	return func(a *Adapter) {
		a.config[KeyModel] = model
	}
}

// WithOptions adds opts to the base configuration. Later options win on shared keys.
func WithOptions(opts Options) Option {
	return func(a *Adapter) {
		maps.Copy(a.config, opts)
	}
}

// WithOption sets a single base configuration key.
func WithOption(key string, value any) Option {
	return func(a *Adapter) {
		a.config[key] = value
	}
}

// WithExecutor replaces the execution engine. The capacity, retry and cache hooks are
// still reported by Policies but are not applied by the Adapter; exec owns them.
func WithExecutor(exec engine.Executor[Result]) Option {
	return func(a *Adapter) {
		a.exec = exec
	}
}

// WithEngineConfig passes extra engine settings (rate limit, metrics) to the default
// engine. Capacity, Retry and Cache in cfg are replaced by the adapter's hooks.
func WithEngineConfig(cfg engine.Config[Result]) Option {
	return func(a *Adapter) {
		a.engineCfg = cfg
	}
}

// WithLogger sets the logger. Default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}
