package reliability

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides whether and how long to wait before another
// attempt. Consumers wire a RetryPolicy into an interceptor's own
// retry step; it is unrelated to the fixed-interval recovery loops
// ConnectionSupervisor/ChannelSupervisor/TopologyRunner run.
type RetryPolicy interface {
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	MaxRetries() int
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles (or Multiplier's) the delay each attempt,
// capped at MaxInterval, with optional jitter.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxRetries,
		Jitter:          true,
	}
}

func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts || !isRetryable(err) {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

func (e *ExponentialBackoff) MaxRetries() int { return e.MaxAttempts }

func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay
		delay = delay + jitter - (0.15 * delay)
	}
	return time.Duration(delay)
}

// LinearBackoff waits a fixed interval, with optional jitter, between
// attempts. MaxAttempts counts the retries after the first attempt.
type LinearBackoff struct {
	Interval    time.Duration
	MaxAttempts int
	Jitter      bool
}

func NewLinearBackoff(interval time.Duration, maxRetries int) *LinearBackoff {
	return &LinearBackoff{Interval: interval, MaxAttempts: maxRetries, Jitter: true}
}

func (l *LinearBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= l.MaxAttempts || !isRetryable(err) {
		return false, 0
	}
	return true, l.NextDelay(attempt)
}

func (l *LinearBackoff) MaxRetries() int { return l.MaxAttempts }

func (l *LinearBackoff) NextDelay(attempt int) time.Duration {
	delay := l.Interval
	if l.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - (delay * 15 / 100)
	}
	return delay
}

// FixedDelay retries after the same delay every time, up to MaxAttempts
// retries after the first attempt.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

func NewFixedDelay(delay time.Duration, maxRetries int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxAttempts: maxRetries}
}

func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts || !isRetryable(err) {
		return false, 0
	}
	return true, f.Delay
}

func (f *FixedDelay) MaxRetries() int                { return f.MaxAttempts }
func (f *FixedDelay) NextDelay(attempt int) time.Duration { return f.Delay }

// Retry runs fn under policy until it succeeds, policy gives up, or ctx
// is canceled.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		shouldRetry, delay := policy.ShouldRetry(attempt, lastErr)
		if !shouldRetry {
			return lastErr
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	type retryable interface{ IsRetryable() bool }
	if r, ok := err.(retryable); ok {
		return r.IsRetryable()
	}
	return true
}

// RetryableError wraps err with an explicit retryability decision, for
// callers whose failures aren't retryable by default (e.g. a handler
// that classified a message as a poison pill).
type RetryableError struct {
	Err       error
	Retryable bool
}

func (r RetryableError) Error() string   { return r.Err.Error() }
func (r RetryableError) IsRetryable() bool { return r.Retryable }
func (r RetryableError) Unwrap() error   { return r.Err }
