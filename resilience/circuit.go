package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// State represents the circuit breaker state.
type State int32

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker. All thresholds are
// validated at construction; out-of-range values return ErrInvalidConfig.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in the
	// closed state that opens the circuit. Must be > 0.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes
	// that closes the circuit. Must be > 0.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before admitting a
	// half-open probe. Must be > 0.
	Timeout time.Duration

	// HalfOpenMaxCalls is the maximum number of concurrent probes allowed
	// in the half-open state. Must be >= 1.
	HalfOpenMaxCalls int

	// Clock is the time source. Nil means the real clock.
	Clock clock.Clock

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool
}

// DefaultCircuitBreakerConfig returns production defaults: open after 5
// consecutive failures, close after 2 consecutive half-open successes,
// stay open for 30 seconds, admit 1 probe at a time.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

func (c *CircuitBreakerConfig) validate() error {
	if c.FailureThreshold <= 0 {
		return configErrorf("failure threshold must be > 0, got %d", c.FailureThreshold)
	}
	if c.SuccessThreshold <= 0 {
		return configErrorf("success threshold must be > 0, got %d", c.SuccessThreshold)
	}
	if c.Timeout <= 0 {
		return configErrorf("timeout must be > 0, got %v", c.Timeout)
	}
	if c.HalfOpenMaxCalls < 1 {
		return configErrorf("half-open max calls must be >= 1, got %d", c.HalfOpenMaxCalls)
	}
	return nil
}

// CircuitBreaker implements the circuit breaker pattern. State reads and
// the closed-state admission check are lock-free; transitions take a
// brief exclusive section that never wraps the caller's operation.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	clk    clock.Clock

	state            atomic.Int32
	failureThreshold atomic.Int64
	halfOpenInflight atomic.Int32

	totalCalls      atomic.Int64
	totalSuccesses  atomic.Int64
	totalFailures   atomic.Int64
	totalRejections atomic.Int64

	mu                   sync.Mutex
	consecutiveFailures  int
	consecutiveSuccesses int
	openedAt             time.Time
	lastTransition       time.Time
}

// NewCircuitBreaker creates a new circuit breaker. It returns
// ErrInvalidConfig if any threshold is out of range.
func NewCircuitBreaker(config CircuitBreakerConfig) (*CircuitBreaker, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	cb := &CircuitBreaker{
		config: config,
		clk:    config.Clock,
	}
	cb.failureThreshold.Store(int64(config.FailureThreshold))
	cb.lastTransition = cb.clk.Now()
	return cb, nil
}

// Execute runs the operation through the circuit breaker. Rejected calls
// return ErrCircuitOpen without invoking the operation.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	cb.totalCalls.Add(1)

	if err := cb.beforeCall(); err != nil {
		cb.totalRejections.Add(1)
		return err
	}

	err := op(ctx)
	cb.afterCall(err)
	return err
}

// State returns the effective circuit state. An open circuit whose
// timeout has elapsed reports half-open; the actual transition happens on
// the next admitted call, so this read never mutates state.
func (cb *CircuitBreaker) State() State {
	s := State(cb.state.Load())
	if s != StateOpen {
		return s
	}

	cb.mu.Lock()
	openedAt := cb.openedAt
	cb.mu.Unlock()

	if cb.clk.Since(openedAt) >= cb.config.Timeout {
		return StateHalfOpen
	}
	return StateOpen
}

// Reset returns the breaker to the closed state and clears all counters,
// cumulative metrics included. It is never invoked automatically.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	cb.transitionLocked(StateClosed)
	cb.mu.Unlock()

	cb.totalCalls.Store(0)
	cb.totalSuccesses.Store(0)
	cb.totalFailures.Store(0)
	cb.totalRejections.Store(0)
}

func (cb *CircuitBreaker) beforeCall() error {
	// Fast path: closed circuits admit without locking.
	if State(cb.state.Load()) == StateClosed {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch State(cb.state.Load()) {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.clk.Since(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		// Timeout elapsed: this call becomes the first half-open probe.
		cb.transitionLocked(StateHalfOpen)
		cb.halfOpenInflight.Store(1)
		return nil

	case StateHalfOpen:
		if int(cb.halfOpenInflight.Add(1)) > cb.config.HalfOpenMaxCalls {
			cb.halfOpenInflight.Add(-1)
			return ErrCircuitOpen
		}
		return nil
	}

	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	failure := cb.config.IsFailure(err)
	if failure {
		cb.totalFailures.Add(1)
	} else {
		cb.totalSuccesses.Add(1)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch State(cb.state.Load()) {
	case StateClosed:
		if failure {
			cb.consecutiveFailures++
			cb.consecutiveSuccesses = 0
			if int64(cb.consecutiveFailures) >= cb.failureThreshold.Load() {
				cb.transitionLocked(StateOpen)
			}
		} else {
			cb.consecutiveFailures = 0
			cb.consecutiveSuccesses++
		}

	case StateHalfOpen:
		cb.halfOpenInflight.Add(-1)
		if failure {
			// Failed probe: back to open, counters reset.
			cb.transitionLocked(StateOpen)
		} else {
			cb.consecutiveSuccesses++
			if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
				cb.transitionLocked(StateClosed)
			}
		}

	case StateOpen:
		// A call admitted before the circuit opened is completing late.
		// Its cumulative counters are already recorded; the open state
		// machine ignores it.
	}
}

// transitionLocked moves to the target state, resets episode counters,
// and fires the state-change callback. Caller holds mu.
func (cb *CircuitBreaker) transitionLocked(to State) {
	from := State(cb.state.Load())
	if from == to {
		return
	}

	now := cb.clk.Now()
	cb.state.Store(int32(to))
	cb.lastTransition = now
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenInflight.Store(0)
	if to == StateOpen {
		cb.openedAt = now
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// currentFailureThreshold returns the live failure threshold. The
// adaptive breaker retunes it between windows.
func (cb *CircuitBreaker) currentFailureThreshold() int {
	return int(cb.failureThreshold.Load())
}

// setFailureThreshold replaces the live failure threshold. Values < 1 are
// ignored.
func (cb *CircuitBreaker) setFailureThreshold(n int) {
	if n < 1 {
		return
	}
	cb.failureThreshold.Store(int64(n))
}

// Metrics returns a point-in-time copy of the breaker's counters. The
// read never blocks the admission fast path; counters read under
// contention may be momentarily stale relative to each other.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	consecFailures := cb.consecutiveFailures
	consecSuccesses := cb.consecutiveSuccesses
	lastTransition := cb.lastTransition
	cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:                cb.State(),
		TotalCalls:           cb.totalCalls.Load(),
		Successes:            cb.totalSuccesses.Load(),
		Failures:             cb.totalFailures.Load(),
		Rejections:           cb.totalRejections.Load(),
		ConsecutiveFailures:  consecFailures,
		ConsecutiveSuccesses: consecSuccesses,
		FailureThreshold:     cb.currentFailureThreshold(),
		LastTransition:       lastTransition,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State                State
	TotalCalls           int64
	Successes            int64
	Failures             int64
	Rejections           int64
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	FailureThreshold     int
	LastTransition       time.Time
}

// SuccessRate returns the fraction of completed calls that succeeded.
func (m CircuitBreakerMetrics) SuccessRate() float64 {
	completed := m.Successes + m.Failures
	if completed == 0 {
		return 0
	}
	return float64(m.Successes) / float64(completed)
}

// FailureRate returns the fraction of completed calls that failed.
func (m CircuitBreakerMetrics) FailureRate() float64 {
	completed := m.Successes + m.Failures
	if completed == 0 {
		return 0
	}
	return float64(m.Failures) / float64(completed)
}

// TimeInState returns how long the breaker has been in its current state
// as of now.
func (m CircuitBreakerMetrics) TimeInState(now time.Time) time.Duration {
	return now.Sub(m.LastTransition)
}
