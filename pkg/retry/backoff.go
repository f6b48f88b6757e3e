package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	errs "grokfav/pkg/errors"
)

// BackoffStrategy computes the wait before the next attempt
type BackoffStrategy interface {
	// NextDelay returns the delay to apply after the given failed attempt
	NextDelay(attempt int) time.Duration
	// Reset returns the strategy to its initial state
	Reset()
}

// ErrorAwareBackoff is implemented by strategies that pick a delay from the
// failure that caused the retry.
type ErrorAwareBackoff interface {
	BackoffStrategy
	DelayFor(attempt int, err error) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultExponentialBackoff returns a backoff suited to media CDN requests
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential growth and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	return applyJitter(delay, eb.JitterFactor)
}

// Reset is a no-op; the delay is derived from the attempt number
func (eb *ExponentialBackoff) Reset() {}

// ConstantBackoff waits the same amount before every retry
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns the constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset is a no-op for constant backoff
func (cb *ConstantBackoff) Reset() {}

func applyJitter(delay, factor float64) time.Duration {
	if factor > 0 {
		jitter := delay * factor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Wait waits for the specified duration or until ctx is done
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Between waits a uniformly random duration in [min, max]
func Between(ctx context.Context, min, max time.Duration) error {
	if max <= min {
		return Wait(ctx, min)
	}
	return Wait(ctx, min+time.Duration(rand.Int63n(int64(max-min)+1)))
}

// ErrorTypeBackoff selects a strategy from the type of the failure
type ErrorTypeBackoff struct {
	NetworkErrorBackoff BackoffStrategy
	RateLimitBackoff    BackoffStrategy
	ServerErrorBackoff  BackoffStrategy
	DefaultBackoff      BackoffStrategy
}

// NewErrorTypeBackoff creates an error-type backoff derived from base. Rate
// limit responses wait longer than network or server failures.
func NewErrorTypeBackoff(base *ExponentialBackoff) *ErrorTypeBackoff {
	if base == nil {
		base = DefaultExponentialBackoff()
	}
	slow := *base
	slow.BaseDelay = base.BaseDelay * 4
	slow.MaxDelay = base.MaxDelay * 3
	slow.JitterFactor = 0.3

	return &ErrorTypeBackoff{
		NetworkErrorBackoff: base,
		RateLimitBackoff:    &slow,
		ServerErrorBackoff:  base,
		DefaultBackoff:      base,
	}
}

// NextDelay uses the default strategy when no error is known
func (etb *ErrorTypeBackoff) NextDelay(attempt int) time.Duration {
	return etb.DefaultBackoff.NextDelay(attempt)
}

// DelayFor returns the delay of the strategy matching err's type
func (etb *ErrorTypeBackoff) DelayFor(attempt int, err error) time.Duration {
	return etb.ForType(errs.TypeOf(err)).NextDelay(attempt)
}

// ForType returns the strategy for an error type
func (etb *ErrorTypeBackoff) ForType(errorType errs.ErrorType) BackoffStrategy {
	switch errorType {
	case errs.ErrorTypeNetwork:
		return etb.NetworkErrorBackoff
	case errs.ErrorTypeRateLimit:
		return etb.RateLimitBackoff
	case errs.ErrorTypeServerError:
		return etb.ServerErrorBackoff
	default:
		return etb.DefaultBackoff
	}
}

// Reset resets every underlying strategy
func (etb *ErrorTypeBackoff) Reset() {
	for _, b := range []BackoffStrategy{etb.NetworkErrorBackoff, etb.RateLimitBackoff, etb.ServerErrorBackoff, etb.DefaultBackoff} {
		if b != nil {
			b.Reset()
		}
	}
}
