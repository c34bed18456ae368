package llm

import (
	"context"
	"sync"
	"time"
)

// DefaultRequestsPerMinute is the token bucket capacity when the
// configuration leaves the rate unset.
const DefaultRequestsPerMinute = 120

// TokenBucket is a minute-granularity request rate limiter. The bucket
// starts full and refills continuously at capacity/60 tokens per second.
type TokenBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	rate     float64
	last     time.Time
}

// NewTokenBucket creates a bucket allowing rpm requests per minute.
func NewTokenBucket(rpm int) *TokenBucket {
	if rpm <= 0 {
		rpm = DefaultRequestsPerMinute
	}
	return &TokenBucket{
		capacity: float64(rpm),
		tokens:   float64(rpm),
		rate:     float64(rpm) / 60.0,
		last:     time.Now(),
	}
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(time.Now())
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		b.refill(now)
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// refill advances the bucket to now. Callers hold the mutex.
func (b *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.last = now
	b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
}
