package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// MaxConcurrent is the maximum number of concurrent operations.
	// Must be >= 1.
	MaxConcurrent int

	// MaxQueue is the maximum number of callers allowed to wait for a
	// permit. Zero means no waiting: saturated calls fail immediately.
	// Must be >= 0.
	MaxQueue int

	// AcquireTimeout bounds how long a queued caller waits for a permit.
	// Zero means queued callers wait until the context is done.
	// Must be >= 0.
	AcquireTimeout time.Duration

	// Clock is the time source. Nil means the real clock.
	Clock clock.Clock
}

// DefaultBulkheadConfig returns production defaults: 10 concurrent
// operations, a queue of 10, and a 1-second acquire timeout.
func DefaultBulkheadConfig() BulkheadConfig {
	return BulkheadConfig{
		MaxConcurrent:  10,
		MaxQueue:       10,
		AcquireTimeout: time.Second,
	}
}

func (c *BulkheadConfig) validate() error {
	if c.MaxConcurrent < 1 {
		return configErrorf("bulkhead max concurrent must be >= 1, got %d", c.MaxConcurrent)
	}
	if c.MaxQueue < 0 {
		return configErrorf("bulkhead max queue must be >= 0, got %d", c.MaxQueue)
	}
	if c.AcquireTimeout < 0 {
		return configErrorf("bulkhead acquire timeout must be >= 0, got %v", c.AcquireTimeout)
	}
	return nil
}

// Bulkhead limits concurrent operations with a fixed permit pool and a
// bounded wait queue. Permit release is unconditional on every exit path
// so the pool can never starve.
type Bulkhead struct {
	config BulkheadConfig
	clk    clock.Clock
	sem    chan struct{}

	queued   atomic.Int32
	executed atomic.Int64
	rejected atomic.Int64
	timedOut atomic.Int64
}

// NewBulkhead creates a new bulkhead. It returns ErrInvalidConfig if the
// configuration is out of range.
func NewBulkhead(config BulkheadConfig) (*Bulkhead, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	return &Bulkhead{
		config: config,
		clk:    config.Clock,
		sem:    make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Acquire claims a permit. If none is immediately available the caller
// joins the bounded queue, waiting up to AcquireTimeout. A full queue
// returns ErrBulkheadFull; an elapsed timeout returns ErrTimeout. Every
// successful Acquire must be paired with Release.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	// Fast path: non-blocking claim.
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}

	if b.config.MaxQueue == 0 {
		b.rejected.Add(1)
		return &BulkheadFullError{Capacity: b.config.MaxConcurrent}
	}

	if int(b.queued.Add(1)) > b.config.MaxQueue {
		b.queued.Add(-1)
		b.rejected.Add(1)
		return &BulkheadFullError{Capacity: b.config.MaxConcurrent}
	}
	defer b.queued.Add(-1)

	var deadline <-chan time.Time
	if b.config.AcquireTimeout > 0 {
		deadline = b.clk.After(b.config.AcquireTimeout)
	}

	select {
	case b.sem <- struct{}{}:
		return nil
	case <-deadline:
		b.timedOut.Add(1)
		return &TimeoutError{Timeout: b.config.AcquireTimeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the pool.
func (b *Bulkhead) Release() {
	select {
	case <-b.sem:
	default:
		// Unpaired release; the pool is already full.
	}
}

// Execute runs the operation within the bulkhead. The permit is released
// on every exit path, panics included.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.Acquire(ctx); err != nil {
		return err
	}
	defer b.Release()

	b.executed.Add(1)
	return op(ctx)
}

// Metrics returns current bulkhead statistics without blocking callers
// in Acquire.
func (b *Bulkhead) Metrics() BulkheadMetrics {
	return BulkheadMetrics{
		Active:        len(b.sem),
		Queued:        int(b.queued.Load()),
		MaxConcurrent: b.config.MaxConcurrent,
		MaxQueue:      b.config.MaxQueue,
		Executed:      b.executed.Load(),
		Rejected:      b.rejected.Load(),
		TimedOut:      b.timedOut.Load(),
	}
}

// BulkheadMetrics contains bulkhead statistics.
type BulkheadMetrics struct {
	Active        int
	Queued        int
	MaxConcurrent int
	MaxQueue      int
	Executed      int64
	Rejected      int64
	TimedOut      int64
}

// Utilization returns the fraction of permits currently in use.
func (m BulkheadMetrics) Utilization() float64 {
	if m.MaxConcurrent == 0 {
		return 0
	}
	return float64(m.Active) / float64(m.MaxConcurrent)
}

// RejectionRate returns the fraction of resolved acquisitions that were
// rejected or timed out.
func (m BulkheadMetrics) RejectionRate() float64 {
	total := m.Executed + m.Rejected + m.TimedOut
	if total == 0 {
		return 0
	}
	return float64(m.Rejected+m.TimedOut) / float64(total)
}
