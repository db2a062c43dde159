package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter holds the state of the rate limits.
type RateLimiter struct {
	TokensBucket   *TokenBucket
	RequestsBucket *TokenBucket
}

// Ensure RateLimiter implements Limiter.
var _ Limiter = (*RateLimiter)(nil)

// New creates an in-memory limiter refilled every minute.
func New(tokensPerMinute, requestsPerMinute int) *RateLimiter {
	return NewWithInterval(tokensPerMinute, requestsPerMinute, time.Minute)
}

// NewWithInterval creates an in-memory limiter with a custom refill interval.
func NewWithInterval(tokens, requests int, refillInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		TokensBucket:   NewTokenBucket(tokens, tokens, refillInterval),
		RequestsBucket: NewTokenBucket(requests, requests, refillInterval),
	}
}

// HasCapacity checks if tokens are available WITHOUT consuming them.
func (rl *RateLimiter) HasCapacity(numTokens int) bool {
	return rl.TokensBucket.HasCapacity(numTokens) && rl.RequestsBucket.HasCapacity(1)
}

// TryConsume atomically checks capacity and consumes tokens if available.
// Nothing is consumed unless both buckets have room.
func (rl *RateLimiter) TryConsume(numTokens int) bool {
	if !rl.HasCapacity(numTokens) {
		return false
	}
	if !rl.TokensBucket.TryConsume(numTokens) {
		return false
	}
	if !rl.RequestsBucket.TryConsume(1) {
		rl.TokensBucket.Refund(numTokens)
		return false
	}
	return true
}

// Wait returns the time the caller needs to wait to consume the specified number of tokens.
func (rl *RateLimiter) Wait(tokens int) time.Duration {
	return rl.TokensBucket.Wait(tokens)
}

// TimeUntilAvailable returns how long until the specified tokens would be available.
// This does not modify state.
func (rl *RateLimiter) TimeUntilAvailable(tokens int) time.Duration {
	tokenWait := rl.TokensBucket.TimeUntilAvailable(tokens)
	requestWait := rl.RequestsBucket.TimeUntilAvailable(1)
	return max(tokenWait, requestWait)
}

// WaitAndConsume waits until tokens are available (up to maxWait), then consumes them.
// If maxWait is 0, there is no limit on how long to wait.
func (rl *RateLimiter) WaitAndConsume(ctx context.Context, tokens int, maxWait time.Duration) error {
	waitDuration := rl.TimeUntilAvailable(tokens)

	if waitDuration > 0 {
		if maxWait > 0 && waitDuration > maxWait {
			return fmt.Errorf("rate limit wait time %v exceeds max wait %v", waitDuration, maxWait)
		}

		timer := time.NewTimer(waitDuration)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if !rl.TryConsume(tokens) {
		return fmt.Errorf("failed to acquire tokens after waiting")
	}

	return nil
}

// TokenBucket implements a token bucket rate limit algorithm.
type TokenBucket struct {
	mu             sync.Mutex
	capacity       int
	remaining      int
	refillInterval time.Duration
	lastRefill     time.Time
}

// NewTokenBucket creates a new token bucket.
func NewTokenBucket(capacity int, initialTokens int, refillInterval time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:       capacity,
		remaining:      initialTokens,
		refillInterval: refillInterval,
		lastRefill:     time.Now(),
	}
}

// HasCapacity checks if tokens are available WITHOUT consuming them.
func (tb *TokenBucket) HasCapacity(tokens int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	remaining := tb.remaining
	if time.Since(tb.lastRefill) >= tb.refillInterval {
		remaining = tb.capacity
	}
	return tokens <= remaining
}

// TryConsume tries to consume a specified number of tokens from the bucket.
func (tb *TokenBucket) TryConsume(tokens int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillInterval {
		tb.remaining = tb.capacity
		tb.lastRefill = now
	}
	if tokens <= tb.remaining {
		tb.remaining -= tokens
		return true
	}
	return false
}

// Refund returns previously consumed tokens, never above capacity.
func (tb *TokenBucket) Refund(tokens int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.remaining = min(tb.capacity, tb.remaining+tokens)
}

// TimeUntilAvailable returns how long until tokens would be available (read-only).
func (tb *TokenBucket) TimeUntilAvailable(tokens int) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	return tb.waitFor(tokens, tb.effectiveRemaining(time.Now()))
}

// Wait refills the bucket for the elapsed time and returns how long the
// caller must wait before tokens are available.
func (tb *TokenBucket) Wait(tokens int) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.remaining = tb.effectiveRemaining(now)
	tb.lastRefill = now

	return tb.waitFor(tokens, tb.remaining)
}

// effectiveRemaining accounts for full and partial refills since lastRefill.
func (tb *TokenBucket) effectiveRemaining(now time.Time) int {
	elapsed := now.Sub(tb.lastRefill)
	switch {
	case elapsed >= tb.refillInterval:
		return tb.capacity
	case elapsed > 0:
		replenished := int(float64(tb.capacity) * (float64(elapsed) / float64(tb.refillInterval)))
		return min(tb.capacity, tb.remaining+replenished)
	default:
		return tb.remaining
	}
}

func (tb *TokenBucket) waitFor(tokens, remaining int) time.Duration {
	if tokens <= remaining {
		return 0
	}
	if tb.capacity <= 0 {
		return tb.refillInterval
	}

	tokensNeeded := tokens - remaining
	tokenRefillRate := float64(tb.capacity) / float64(tb.refillInterval)
	waitDuration := time.Duration(float64(tokensNeeded) / tokenRefillRate)

	// 10% buffer so the refill has certainly landed
	return waitDuration + (waitDuration / 10)
}
