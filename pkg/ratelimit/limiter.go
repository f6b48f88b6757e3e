package ratelimit

import (
	"context"
	"sync"
	"time"

	"grokfav/pkg/config"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow takes a token if one is available
	Allow() bool
	// Wait blocks until a token is available or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter
	Reset()
}

// TokenBucket implements a continuously refilling token bucket
type TokenBucket struct {
	capacity   float64
	tokens     float64
	perToken   time.Duration
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket holding up to burst tokens and gaining one
// token every perToken.
func NewTokenBucket(burst int, perToken time.Duration) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		capacity:   float64(burst),
		tokens:     float64(burst),
		perToken:   perToken,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// FromSettings builds a bucket from requests-per-minute settings. A
// non-positive rate disables limiting.
func FromSettings(rc config.RateLimitConfig) Limiter {
	if rc.RequestsPerMinute <= 0 {
		return Unlimited{}
	}
	return NewTokenBucket(rc.BurstSize, time.Minute/time.Duration(rc.RequestsPerMinute))
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}
		missing := time.Duration((1 - tb.tokens) * float64(tb.perToken))
		tb.mu.Unlock()

		if missing < time.Millisecond {
			missing = time.Millisecond
		}
		timer := time.NewTimer(missing)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset refills the bucket to capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = tb.now()
}

// Available reports the whole tokens currently in the bucket
func (tb *TokenBucket) Available() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return int(tb.tokens)
}

// refill adds tokens for the time elapsed since the last refill
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	if tb.perToken <= 0 {
		tb.tokens = tb.capacity
	} else {
		tb.tokens += float64(elapsed) / float64(tb.perToken)
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
	}
	tb.lastRefill = now
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
