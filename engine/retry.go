package engine

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryStrategy decides whether a failed attempt should be retried.
// attempt is the zero-based index of the attempt that just failed. Next returns the
// delay before the following attempt and false when the error should be returned.
// Implementations must be safe for concurrent use.
type RetryStrategy interface {
	Next(attempt int, err error) (time.Duration, bool)
}

// NoRetry never retries.
type NoRetry struct{}

// Next implements RetryStrategy.
func (NoRetry) Next(int, error) (time.Duration, bool) { return 0, false }

// FixedDelay retries up to MaxRetries times, waiting Delay between attempts.
// Retryable, when set, filters which errors are retried.
type FixedDelay struct {
	MaxRetries int
	Delay      time.Duration
	Retryable  func(error) bool
}

// NewFixedDelay returns a FixedDelay with 3 retries 1s apart.
func NewFixedDelay() FixedDelay {
	return FixedDelay{MaxRetries: 3, Delay: time.Second}
}

// Next implements RetryStrategy.
func (f FixedDelay) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= f.MaxRetries || (f.Retryable != nil && !f.Retryable(err)) {
		return 0, false
	}
	return f.Delay, true
}

// ExponentialBackoff retries up to MaxRetries times. The n-th retry waits
// InitialDelay*Factor^n plus a uniform random jitter in [0, Jitter), capped at MaxDelay
// when MaxDelay > 0.
type ExponentialBackoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	Factor       float64
	Jitter       time.Duration
	MaxDelay     time.Duration
	Retryable    func(error) bool
}

// NewExponentialBackoff returns 3 retries starting at 1s, doubling, with 300ms jitter.
func NewExponentialBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Factor:       2,
		Jitter:       300 * time.Millisecond,
	}
}

// Next implements RetryStrategy.
func (b ExponentialBackoff) Next(attempt int, err error) (time.Duration, bool) {
	if attempt >= b.MaxRetries || (b.Retryable != nil && !b.Retryable(err)) {
		return 0, false
	}
	return b.Delay(attempt), true
}

// Delay returns the wait before retry number attempt (zero-based).
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(b.InitialDelay) * math.Pow(factor, float64(attempt))
	if b.MaxDelay > 0 && d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	delay := time.Duration(d)
	if b.Jitter > 0 && delay <= math.MaxInt64-b.Jitter {
		delay += time.Duration(rand.Int64N(int64(b.Jitter)))
	}
	return delay
}

// Compile-time checks that the strategies implement RetryStrategy.
var (
	_ RetryStrategy = NoRetry{}
	_ RetryStrategy = FixedDelay{}
	_ RetryStrategy = ExponentialBackoff{}
)
