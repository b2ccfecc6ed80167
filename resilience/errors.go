package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations. Typed errors carrying
// metadata match these via errors.Is, so callers can branch on the
// sentinel without caring which wrapper produced it.
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when a rate limiter rejects a call.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when an operation or permit wait times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrInvalidConfig is returned when a configuration fails validation.
	ErrInvalidConfig = errors.New("resilience: invalid configuration")

	// ErrAttemptsExhausted is returned when all retry attempts fail.
	ErrAttemptsExhausted = errors.New("resilience: retry attempts exhausted")

	// ErrNonRetryable is returned when the retry policy stops a retry run.
	ErrNonRetryable = errors.New("resilience: non-retryable error")

	// ErrRetryBudgetExceeded is returned when a retry run would outlive
	// its total time budget.
	ErrRetryBudgetExceeded = errors.New("resilience: retry time budget exceeded")
)

// ConfigError reports a construction-time validation failure. It is never
// retried or swallowed; constructors return it immediately.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "resilience: invalid configuration: " + e.Message
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func configErrorf(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// TimeoutError reports that an operation or wait exceeded a bound.
type TimeoutError struct {
	// Timeout is the bound that was exceeded.
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resilience: operation timed out after %v", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// RateLimitError reports a rate limiter rejection.
type RateLimitError struct {
	// Requests is the number of units the caller asked for.
	Requests int
	// Window is the limiter's refill or smoothing window.
	Window time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("resilience: rate limit exceeded: %d request(s) per %v window", e.Requests, e.Window)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// BulkheadFullError reports that the bulkhead had no permit and no queue
// slot for the caller.
type BulkheadFullError struct {
	// Capacity is the bulkhead's concurrent-call limit.
	Capacity int
}

func (e *BulkheadFullError) Error() string {
	return fmt.Sprintf("resilience: bulkhead at capacity (%d concurrent)", e.Capacity)
}

func (e *BulkheadFullError) Is(target error) bool {
	return target == ErrBulkheadFull
}

// AttemptsExhaustedError reports that every retry attempt failed. The
// operation's final error is preserved via Unwrap.
type AttemptsExhaustedError struct {
	// Attempts is the number of attempts made, including the first.
	Attempts int
	// LastErr is the error observed on the final attempt.
	LastErr error
}

func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("resilience: retry attempts exhausted after %d attempt(s): %v", e.Attempts, e.LastErr)
}

func (e *AttemptsExhaustedError) Is(target error) bool {
	return target == ErrAttemptsExhausted
}

func (e *AttemptsExhaustedError) Unwrap() error {
	return e.LastErr
}

// NonRetryableError reports that the retry policy classified the
// operation's error as not worth retrying. The source error is propagated
// unchanged via Unwrap.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return "resilience: non-retryable error: " + e.Err.Error()
}

func (e *NonRetryableError) Is(target error) bool {
	return target == ErrNonRetryable
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// RetryBudgetError reports that sleeping before the next attempt would
// exceed the retry run's total time budget.
type RetryBudgetError struct {
	// Elapsed is the time spent in the retry run when it was aborted.
	Elapsed time.Duration
	// LastErr is the error observed on the final attempt.
	LastErr error
}

func (e *RetryBudgetError) Error() string {
	return fmt.Sprintf("resilience: retry time budget exceeded after %v: %v", e.Elapsed, e.LastErr)
}

func (e *RetryBudgetError) Is(target error) bool {
	return target == ErrRetryBudgetExceeded
}

func (e *RetryBudgetError) Unwrap() error {
	return e.LastErr
}
