package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// LeakyBucketConfig configures the leaky bucket rate limiter.
type LeakyBucketConfig struct {
	// Capacity is the maximum fill level. Must be > 0.
	Capacity float64

	// LeakRate is how many units drain per second. Must be > 0.
	LeakRate float64

	// Clock is the time source. Nil means the real clock.
	Clock clock.Clock
}

// DefaultLeakyBucketConfig returns production defaults: capacity 10,
// draining 100 units per second.
func DefaultLeakyBucketConfig() LeakyBucketConfig {
	return LeakyBucketConfig{
		Capacity: 10,
		LeakRate: 100,
	}
}

func (c *LeakyBucketConfig) validate() error {
	if c.Capacity <= 0 {
		return configErrorf("leaky bucket capacity must be > 0, got %v", c.Capacity)
	}
	if c.LeakRate <= 0 {
		return configErrorf("leaky bucket leak rate must be > 0, got %v", c.LeakRate)
	}
	return nil
}

// LeakyBucket is a rate limiter that enforces a smoothed throughput
// ceiling: each admission fills the bucket by one unit and the bucket
// drains at a constant rate. Where the token bucket tolerates bursts,
// the leaky bucket flattens them.
type LeakyBucket struct {
	config LeakyBucketConfig
	clk    clock.Clock

	mu         sync.Mutex
	level      float64
	lastUpdate time.Time
}

// NewLeakyBucket creates a new leaky bucket, initially empty. It returns
// ErrInvalidConfig if the configuration is out of range.
func NewLeakyBucket(config LeakyBucketConfig) (*LeakyBucket, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &LeakyBucket{
		config:     config,
		clk:        config.Clock,
		lastUpdate: config.Clock.Now(),
	}, nil
}

// Allow reports whether one request is admitted. On admission the level
// rises by one unit; on rejection the bucket is left unchanged beyond
// the lazy leak.
func (lb *LeakyBucket) Allow() bool {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked()

	if lb.level+1 <= lb.config.Capacity {
		lb.level++
		return true
	}
	return false
}

// Execute runs the operation if the bucket admits it, otherwise returns
// ErrRateLimitExceeded without invoking it.
func (lb *LeakyBucket) Execute(ctx context.Context, op func(context.Context) error) error {
	if !lb.Allow() {
		window := time.Duration(float64(time.Second) / lb.config.LeakRate)
		return &RateLimitError{Requests: 1, Window: window}
	}
	return op(ctx)
}

// Level returns the current fill level after a lazy leak.
func (lb *LeakyBucket) Level() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.leakLocked()
	return lb.level
}

// Reset empties the bucket.
func (lb *LeakyBucket) Reset() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.level = 0
	lb.lastUpdate = lb.clk.Now()
}

func (lb *LeakyBucket) leakLocked() {
	now := lb.clk.Now()
	elapsed := now.Sub(lb.lastUpdate)
	lb.lastUpdate = now

	lb.level -= lb.config.LeakRate * elapsed.Seconds()
	if lb.level < 0 {
		lb.level = 0
	}
}
