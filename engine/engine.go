package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrNilTask is returned by Execute when task is nil.
var ErrNilTask = errors.New("engine: task must not be nil")

// Task is one unit of remote work. It is invoked once per attempt.
type Task[T any] func(ctx context.Context) (T, error)

// Executor runs a task under capacity, retry and cache policies.
// key identifies the task's input for caching; an empty key disables caching for the call.
type Executor[T any] interface {
	Execute(ctx context.Context, key string, task Task[T]) (T, error)
}

// Config holds the policies of an Engine. The zero value runs every task once,
// without concurrency bound, rate limit or cache.
type Config[T any] struct {
	// Capacity bounds concurrently running attempts. <= 0 means unbounded.
	Capacity int
	// Retry decides whether a failed attempt is retried. nil means NoRetry.
	Retry RetryStrategy
	// Cache serves results stored by earlier calls with the same key. nil disables caching.
	Cache CacheStrategy[T]
	// RateLimit is the sustained attempt rate per second. 0 disables rate limiting.
	RateLimit rate.Limit
	// Burst is the token bucket size; defaults to 1 when RateLimit is set.
	Burst   int
	Metrics *Metrics
	Logger  *slog.Logger
}

// Engine is the reference Executor. It is safe for concurrent use.
type Engine[T any] struct {
	sem     *semaphore.Weighted
	retry   RetryStrategy
	cache   CacheStrategy[T]
	limiter *rate.Limiter
	metrics *Metrics
	logger  *slog.Logger
	sf      singleflight.Group
}

// New creates an Engine from cfg.
func New[T any](cfg Config[T]) *Engine[T] {
	e := &Engine[T]{
		retry:   cfg.Retry,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if cfg.Capacity > 0 {
		e.sem = semaphore.NewWeighted(int64(cfg.Capacity))
	}
	if e.retry == nil {
		e.retry = NoRetry{}
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e
}

// Execute runs task, consulting the cache first when key is non-empty.
// Concurrent calls for the same uncached key share one flight. A failure is returned
// exactly as the last attempt produced it.
func (e *Engine[T]) Execute(ctx context.Context, key string, task Task[T]) (T, error) {
	var zero T
	if task == nil {
		return zero, ErrNilTask
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	start := time.Now()
	v, err := e.execute(ctx, key, task)
	e.metrics.observeCall(err, time.Since(start))
	return v, err
}

func (e *Engine[T]) execute(ctx context.Context, key string, task Task[T]) (T, error) {
	if e.cache == nil || key == "" {
		return e.run(ctx, task)
	}
	if v, ok := e.lookup(ctx, key); ok {
		return v, nil
	}
	var zero T
	flight := key
	if scope := flightScope(ctx); scope != "" {
		flight = key + "\x00" + scope
	}
	for {
		// The flight runs under the context of the caller that started it.
		ch := e.sf.DoChan(flight, func() (any, error) {
			v, err := e.run(ctx, task)
			if err != nil {
				return nil, err
			}
			if err := e.cache.Set(ctx, key, v); err != nil {
				e.logger.WarnContext(ctx, "cache write failed", slog.String("key", key), slog.Any("error", err))
			}
			return v, nil
		})
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The flight was started by a caller that has since gone away; run our own.
				if res.Shared && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				return zero, res.Err
			}
			v, _ := res.Val.(T)
			return v, nil
		}
	}
}

type flightScopeKey struct{}

// WithFlightScope returns a context whose Execute calls share in-flight work only
// with calls of the same scope. The cache key is unaffected. Callers use it to keep
// per-call credentials from joining a flight dispatched with another credential.
func WithFlightScope(ctx context.Context, scope string) context.Context {
	if scope == "" {
		return ctx
	}
	return context.WithValue(ctx, flightScopeKey{}, scope)
}

func flightScope(ctx context.Context) string {
	s, _ := ctx.Value(flightScopeKey{}).(string)
	return s
}

func (e *Engine[T]) lookup(ctx context.Context, key string) (T, bool) {
	v, ok, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		e.logger.WarnContext(ctx, "cache read failed", slog.String("key", key), slog.Any("error", err))
		e.metrics.observeCache(cacheError)
		return v, false
	case ok:
		e.metrics.observeCache(cacheHit)
		return v, true
	default:
		e.metrics.observeCache(cacheMiss)
		return v, false
	}
}

func (e *Engine[T]) run(ctx context.Context, task Task[T]) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := e.attempt(ctx, task)
		if err == nil {
			return v, nil
		}
		if isContextErr(err) || ctx.Err() != nil {
			return zero, err
		}
		delay, ok := e.retry.Next(attempt, err)
		if !ok {
			if attempt > 0 {
				e.logger.WarnContext(ctx, "retries exhausted", slog.Int("attempts", attempt+1), slog.Any("error", err))
			}
			return zero, err
		}
		e.metrics.observeRetry()
		e.logger.WarnContext(ctx, "retrying task",
			slog.Int("attempt", attempt+1), slog.Duration("delay", delay), slog.Any("error", err))
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func (e *Engine[T]) attempt(ctx context.Context, task Task[T]) (T, error) {
	var zero T
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return zero, err
		}
	}
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return zero, err
		}
		defer e.sem.Release(1)
	}
	e.metrics.inflightAdd(1)
	defer e.metrics.inflightAdd(-1)
	return task(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Compile-time check that Engine implements Executor.
var _ Executor[string] = (*Engine[string])(nil)
