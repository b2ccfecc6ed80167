package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// AdaptiveConfig configures the adaptive circuit breaker. The wrapped
// breaker starts at InitialFailureThreshold and is retuned between
// MinFailureThreshold and MaxFailureThreshold based on the observed
// error rate over a sliding window of recent outcomes.
type AdaptiveConfig struct {
	// InitialFailureThreshold is the wrapped breaker's starting
	// consecutive-failure threshold. Must satisfy
	// MinFailureThreshold <= InitialFailureThreshold <= MaxFailureThreshold.
	InitialFailureThreshold int

	// MinFailureThreshold is the floor the threshold can be tuned down to.
	// Must be > 0.
	MinFailureThreshold int

	// MaxFailureThreshold is the ceiling the threshold can be tuned up to.
	MaxFailureThreshold int

	// TargetErrorRate is the error rate the tuner steers toward. An
	// observed rate above it tightens the breaker; a rate below half of
	// it loosens it. Must be in (0, 1).
	TargetErrorRate float64

	// WindowSize is the number of recent outcomes retained. The window is
	// a strict ring: the oldest outcome is overwritten. Must be > 0.
	WindowSize int

	// AdjustmentInterval is the minimum time between threshold
	// recalculations. The threshold is never mutated mid-window on a
	// tighter cadence, to avoid oscillation. Must be > 0.
	AdjustmentInterval time.Duration

	// SuccessThreshold, Timeout, and HalfOpenMaxCalls configure the
	// wrapped breaker; see CircuitBreakerConfig.
	SuccessThreshold int
	Timeout          time.Duration
	HalfOpenMaxCalls int

	// Clock is the time source. Nil means the real clock.
	Clock clock.Clock

	// OnStateChange is passed through to the wrapped breaker.
	OnStateChange func(from, to State)

	// IsFailure is passed through to the wrapped breaker and also
	// classifies outcomes recorded into the window.
	IsFailure func(err error) bool
}

// DefaultAdaptiveConfig returns production defaults: threshold 5 tunable
// within [2, 20], 5% target error rate, a 100-outcome window, and a
// 10-second adjustment cadence.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		InitialFailureThreshold: 5,
		MinFailureThreshold:     2,
		MaxFailureThreshold:     20,
		TargetErrorRate:         0.05,
		WindowSize:              100,
		AdjustmentInterval:      10 * time.Second,
		SuccessThreshold:        2,
		Timeout:                 30 * time.Second,
		HalfOpenMaxCalls:        1,
	}
}

func (c *AdaptiveConfig) validate() error {
	if c.MinFailureThreshold <= 0 {
		return configErrorf("min failure threshold must be > 0, got %d", c.MinFailureThreshold)
	}
	if c.MaxFailureThreshold < c.MinFailureThreshold {
		return configErrorf("max failure threshold %d below min %d", c.MaxFailureThreshold, c.MinFailureThreshold)
	}
	if c.InitialFailureThreshold < c.MinFailureThreshold || c.InitialFailureThreshold > c.MaxFailureThreshold {
		return configErrorf("initial failure threshold %d outside [%d, %d]",
			c.InitialFailureThreshold, c.MinFailureThreshold, c.MaxFailureThreshold)
	}
	if c.TargetErrorRate <= 0 || c.TargetErrorRate >= 1 {
		return configErrorf("target error rate must be in (0, 1), got %v", c.TargetErrorRate)
	}
	if c.WindowSize <= 0 {
		return configErrorf("window size must be > 0, got %d", c.WindowSize)
	}
	if c.AdjustmentInterval <= 0 {
		return configErrorf("adjustment interval must be > 0, got %v", c.AdjustmentInterval)
	}
	return nil
}

// AdaptiveCircuitBreaker wraps a CircuitBreaker with a ring of recent
// outcomes and a latency histogram, retuning the breaker's failure
// threshold on a fixed cadence. Latency percentiles are exposed for
// diagnostics but do not drive threshold changes.
type AdaptiveCircuitBreaker struct {
	config  AdaptiveConfig
	breaker *CircuitBreaker
	hist    *Histogram
	clk     clock.Clock

	mu         sync.Mutex
	window     []bool // true = failure
	head       int
	filled     int
	lastAdjust time.Time
}

// NewAdaptiveCircuitBreaker creates a new adaptive circuit breaker. It
// returns ErrInvalidConfig if any field is out of range.
func NewAdaptiveCircuitBreaker(config AdaptiveConfig) (*AdaptiveCircuitBreaker, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}

	breaker, err := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: config.InitialFailureThreshold,
		SuccessThreshold: config.SuccessThreshold,
		Timeout:          config.Timeout,
		HalfOpenMaxCalls: config.HalfOpenMaxCalls,
		Clock:            config.Clock,
		OnStateChange:    config.OnStateChange,
		IsFailure:        config.IsFailure,
	})
	if err != nil {
		return nil, err
	}

	return &AdaptiveCircuitBreaker{
		config:     config,
		breaker:    breaker,
		hist:       NewHistogram(),
		clk:        config.Clock,
		window:     make([]bool, config.WindowSize),
		lastAdjust: config.Clock.Now(),
	}, nil
}

// Execute runs the operation through the wrapped breaker, recording the
// outcome and its latency. Rejections (ErrCircuitOpen) are not recorded
// into the window: the operation never ran.
func (a *AdaptiveCircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	start := a.clk.Now()
	err := a.breaker.Execute(ctx, op)
	if errors.Is(err, ErrCircuitOpen) {
		return err
	}

	a.hist.Record(a.clk.Since(start))
	a.observe(a.breaker.config.IsFailure(err))
	return err
}

// observe records one outcome into the ring and retunes the threshold
// when the cadence allows.
func (a *AdaptiveCircuitBreaker) observe(failure bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.window[a.head] = failure
	a.head = (a.head + 1) % len(a.window)
	if a.filled < len(a.window) {
		a.filled++
	}

	a.maybeAdjustLocked()
}

func (a *AdaptiveCircuitBreaker) maybeAdjustLocked() {
	// The full window gives the tuner a stable sample; partial windows
	// during warmup would over-weight early outcomes.
	if a.filled < len(a.window) {
		return
	}
	if a.clk.Since(a.lastAdjust) < a.config.AdjustmentInterval {
		return
	}
	a.lastAdjust = a.clk.Now()

	failures := 0
	for _, failed := range a.window {
		if failed {
			failures++
		}
	}
	rate := float64(failures) / float64(len(a.window))

	current := a.breaker.currentFailureThreshold()
	switch {
	case rate > a.config.TargetErrorRate:
		if current > a.config.MinFailureThreshold {
			a.breaker.setFailureThreshold(current - 1)
		}
	case rate < a.config.TargetErrorRate/2:
		if current < a.config.MaxFailureThreshold {
			a.breaker.setFailureThreshold(current + 1)
		}
	}
}

// State returns the wrapped breaker's effective state.
func (a *AdaptiveCircuitBreaker) State() State {
	return a.breaker.State()
}

// Reset returns the wrapped breaker to closed and clears the window, the
// histogram, and all counters.
func (a *AdaptiveCircuitBreaker) Reset() {
	a.mu.Lock()
	for i := range a.window {
		a.window[i] = false
	}
	a.head = 0
	a.filled = 0
	a.lastAdjust = a.clk.Now()
	a.mu.Unlock()

	a.breaker.Reset()
	a.breaker.setFailureThreshold(a.config.InitialFailureThreshold)
	a.hist.Reset()
}

// LatencySnapshot returns an immutable view of the latency histogram.
func (a *AdaptiveCircuitBreaker) LatencySnapshot() HistogramSnapshot {
	return a.hist.Snapshot()
}

// Metrics returns the adaptive tuner's view alongside the wrapped
// breaker's counters and latency percentiles.
func (a *AdaptiveCircuitBreaker) Metrics() AdaptiveMetrics {
	a.mu.Lock()
	failures := 0
	for i := 0; i < a.filled; i++ {
		if a.window[i] {
			failures++
		}
	}
	filled := a.filled
	lastAdjust := a.lastAdjust
	a.mu.Unlock()

	var rate float64
	if filled > 0 {
		rate = float64(failures) / float64(filled)
	}

	snap := a.hist.Snapshot()
	return AdaptiveMetrics{
		Breaker:                 a.breaker.Metrics(),
		CurrentFailureThreshold: a.breaker.currentFailureThreshold(),
		ObservedErrorRate:       rate,
		WindowFill:              filled,
		WindowSize:              len(a.window),
		LastAdjustment:          lastAdjust,
		LatencyP50:              snap.Percentile(0.50),
		LatencyP95:              snap.Percentile(0.95),
		LatencyP99:              snap.Percentile(0.99),
	}
}

// AdaptiveMetrics contains adaptive circuit breaker statistics.
type AdaptiveMetrics struct {
	Breaker                 CircuitBreakerMetrics
	CurrentFailureThreshold int
	ObservedErrorRate       float64
	WindowFill              int
	WindowSize              int
	LastAdjustment          time.Time
	LatencyP50              time.Duration
	LatencyP95              time.Duration
	LatencyP99              time.Duration
}
