package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// TokenBucketConfig configures the token bucket rate limiter.
type TokenBucketConfig struct {
	// Capacity is the maximum number of tokens the bucket holds, which is
	// also the maximum burst. Must be > 0.
	Capacity float64

	// RefillAmount is the number of tokens added per RefillInterval.
	// Must be > 0.
	RefillAmount float64

	// RefillInterval is the period over which RefillAmount tokens are
	// added. Refill is prorated continuously, not in discrete steps.
	// Must be > 0.
	RefillInterval time.Duration

	// Clock is the time source. Nil means the real clock.
	Clock clock.Clock
}

// DefaultTokenBucketConfig returns production defaults: bursts of up to
// 10, refilled at 100 tokens per second.
func DefaultTokenBucketConfig() TokenBucketConfig {
	return TokenBucketConfig{
		Capacity:       10,
		RefillAmount:   1,
		RefillInterval: 10 * time.Millisecond,
	}
}

func (c *TokenBucketConfig) validate() error {
	if c.Capacity <= 0 {
		return configErrorf("token bucket capacity must be > 0, got %v", c.Capacity)
	}
	if c.RefillAmount <= 0 {
		return configErrorf("token bucket refill amount must be > 0, got %v", c.RefillAmount)
	}
	if c.RefillInterval <= 0 {
		return configErrorf("token bucket refill interval must be > 0, got %v", c.RefillInterval)
	}
	return nil
}

// TokenBucket is a rate limiter that tolerates bursts up to its capacity
// and refills at a steady rate. Refill happens lazily on each check; the
// bucket never blocks on Allow.
type TokenBucket struct {
	config TokenBucketConfig
	clk    clock.Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket, initially full. It returns
// ErrInvalidConfig if the configuration is out of range.
func NewTokenBucket(config TokenBucketConfig) (*TokenBucket, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &TokenBucket{
		config:     config,
		clk:        config.Clock,
		tokens:     config.Capacity,
		lastRefill: config.Clock.Now(),
	}, nil
}

// Allow reports whether one request is admitted.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN reports whether n requests are admitted. On admission n tokens
// are consumed; on rejection the bucket is left unchanged beyond the
// lazy refill.
func (tb *TokenBucket) AllowN(n int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available or ctx is done. It sleeps
// exactly long enough for the deficit to refill, then re-checks.
func (tb *TokenBucket) WaitN(ctx context.Context, n int) error {
	for {
		if tb.AllowN(n) {
			return nil
		}

		tb.mu.Lock()
		deficit := float64(n) - tb.tokens
		tb.mu.Unlock()

		if float64(n) > tb.config.Capacity {
			// Can never be satisfied.
			return &RateLimitError{Requests: n, Window: tb.config.RefillInterval}
		}

		wait := time.Duration(deficit / tb.config.RefillAmount * float64(tb.config.RefillInterval))
		if wait <= 0 {
			wait = time.Millisecond
		}
		if err := tb.clk.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Execute runs the operation if a token is available, otherwise returns
// ErrRateLimitExceeded without invoking it.
func (tb *TokenBucket) Execute(ctx context.Context, op func(context.Context) error) error {
	if !tb.Allow() {
		return &RateLimitError{Requests: 1, Window: tb.config.RefillInterval}
	}
	return op(ctx)
}

// Tokens returns the current token count after a lazy refill.
func (tb *TokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	return tb.tokens
}

// Reset refills the bucket to capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = tb.config.Capacity
	tb.lastRefill = tb.clk.Now()
}

func (tb *TokenBucket) refillLocked() {
	now := tb.clk.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += tb.config.RefillAmount * (float64(elapsed) / float64(tb.config.RefillInterval))
	if tb.tokens > tb.config.Capacity {
		tb.tokens = tb.config.Capacity
	}
}
