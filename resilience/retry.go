package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/guardrail/clock"
)

// Decision is a retry policy's verdict on a failed attempt.
type Decision struct {
	action decisionAction
	delay  time.Duration
}

type decisionAction int

const (
	actionRetry decisionAction = iota
	actionRetryAfter
	actionStop
)

// Retry tells the executor to retry using the configured backoff.
func Retry() Decision {
	return Decision{action: actionRetry}
}

// RetryAfter tells the executor to retry after an explicit delay,
// overriding the configured backoff. Useful for server-specified
// rate-limit hints.
func RetryAfter(d time.Duration) Decision {
	return Decision{action: actionRetryAfter, delay: d}
}

// Stop tells the executor to abort; the run fails with ErrNonRetryable
// wrapping the operation's error.
func Stop() Decision {
	return Decision{action: actionStop}
}

// Policy decides whether a failed attempt should be retried.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic; attempt is 1-based.
type Policy interface {
	ShouldRetry(err error, attempt int) Decision
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(err error, attempt int) Decision

// ShouldRetry implements Policy.
func (f PolicyFunc) ShouldRetry(err error, attempt int) Decision {
	return f(err, attempt)
}

// RetryAll retries every error. It is the default policy.
func RetryAll() Policy {
	return PolicyFunc(func(error, int) Decision { return Retry() })
}

// RetryConfig configures the retry executor.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first
	// try. Must be >= 1.
	MaxAttempts int

	// Backoff computes the pre-jitter delay between attempts. Nil means
	// exponential backoff starting at 100ms with base 2, capped at 30s.
	Backoff Backoff

	// Jitter randomizes computed delays. Nil means no jitter.
	Jitter Jitter

	// MaxTotalTime bounds the whole run: if the elapsed time plus the
	// upcoming delay would exceed it, the run aborts with
	// ErrRetryBudgetExceeded instead of sleeping. Zero means unbounded.
	MaxTotalTime time.Duration

	// Clock is the time source. Nil means the real clock.
	Clock clock.Clock

	// Rand yields uniform values in [0, 1) for jitter. Nil means the
	// shared math/rand/v2 generator; tests inject a seeded source.
	Rand func() float64

	// OnRetry is called before each sleep with the 1-based attempt number
	// that failed, its error, and the chosen delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns production defaults: 3 attempts with full
// jitter over exponential backoff (100ms, base 2, 30s cap).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		Backoff:     ExponentialBackoff{Initial: 100 * time.Millisecond, Base: 2.0, MaxDelay: 30 * time.Second},
		Jitter:      FullJitter{},
	}
}

func (c *RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return configErrorf("max attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.MaxTotalTime < 0 {
		return configErrorf("max total time must be >= 0, got %v", c.MaxTotalTime)
	}
	return nil
}

// Retrier executes operations with retry, backoff, and jitter.
type Retrier struct {
	config RetryConfig
	clk    clock.Clock
}

// NewRetrier creates a new retrier. It returns ErrInvalidConfig if the
// configuration is out of range.
func NewRetrier(config RetryConfig) (*Retrier, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Backoff == nil {
		config.Backoff = ExponentialBackoff{Initial: 100 * time.Millisecond, Base: 2.0, MaxDelay: 30 * time.Second}
	}
	if config.Jitter == nil {
		config.Jitter = NoJitter{}
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Rand == nil {
		config.Rand = rand.Float64
	}

	return &Retrier{config: config, clk: config.Clock}, nil
}

// Config returns the retry configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Execute runs the operation with the default retry-everything policy,
// discarding outcome metadata. Use Do for typed results and metadata.
func (r *Retrier) Execute(ctx context.Context, op func(context.Context) error) error {
	_, err := Do(ctx, r, RetryAll(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Outcome carries the metadata of a completed retry run.
type Outcome[T any] struct {
	// Value is the operation's result when the run succeeded.
	Value T
	// Attempts is the number of attempts made, including the first.
	Attempts int
	// TotalDelay is the accumulated time spent sleeping between attempts.
	TotalDelay time.Duration
	// Start is when the first attempt began.
	Start time.Time
	// LastErr is the last error observed, if any.
	LastErr error
}

// Do runs the operation under the retrier's config and the given policy.
// On success the returned error is nil; on failure it is one of
// ErrAttemptsExhausted, ErrNonRetryable, ErrRetryBudgetExceeded, or the
// context's error, and the outcome still carries the run's metadata.
func Do[T any](ctx context.Context, r *Retrier, policy Policy, op func(context.Context) (T, error)) (Outcome[T], error) {
	cfg := r.config
	out := Outcome[T]{Start: r.clk.Now()}

	// Previous post-jitter delay, carried for decorrelated jitter.
	var prev time.Duration

	for attempt := 1; ; attempt++ {
		out.Attempts = attempt

		v, err := op(ctx)
		if err == nil {
			out.Value = v
			return out, nil
		}
		out.LastErr = err

		// The attempt budget wins regardless of what the policy says.
		if attempt >= cfg.MaxAttempts {
			return out, &AttemptsExhaustedError{Attempts: attempt, LastErr: err}
		}

		decision := policy.ShouldRetry(err, attempt)
		if decision.action == actionStop {
			return out, &NonRetryableError{Err: err}
		}

		var delay time.Duration
		if decision.action == actionRetryAfter {
			delay = decision.delay
		} else {
			delay = cfg.Jitter.Apply(cfg.Backoff.Delay(attempt), prev, cfg.Rand)
		}
		if delay < 0 {
			delay = 0
		}
		prev = delay

		if cfg.MaxTotalTime > 0 {
			elapsed := r.clk.Since(out.Start)
			if elapsed+delay > cfg.MaxTotalTime {
				return out, &RetryBudgetError{Elapsed: elapsed, LastErr: err}
			}
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		if err := r.clk.Sleep(ctx, delay); err != nil {
			return out, err
		}
		out.TotalDelay += delay
	}
}
