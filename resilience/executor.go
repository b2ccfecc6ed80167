package resilience

import (
	"context"
)

// Guard is anything that can wrap an operation with an admission
// decision: circuit breakers, retriers, rate limiters, bulkheads,
// timeouts, and composed executors all satisfy it.
type Guard interface {
	Execute(ctx context.Context, op func(context.Context) error) error
}

// Run executes a value-returning operation through a guard. The zero
// value of T is returned whenever the guard or the operation fails.
func Run[T any](ctx context.Context, g Guard, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := g.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}

// Executor composes multiple resilience patterns around one operation.
type Executor struct {
	rateLimiter Guard
	bulkhead    *Bulkhead
	breaker     Guard
	retrier     *Retrier
	timeout     *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.breaker = cb
	}
}

// WithAdaptiveCircuitBreaker adds an adaptive circuit breaker to the
// executor in place of a static one.
func WithAdaptiveCircuitBreaker(acb *AdaptiveCircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.breaker = acb
	}
}

// WithRetrier adds retry logic to the executor.
func WithRetrier(r *Retrier) ExecutorOption {
	return func(e *Executor) {
		e.retrier = r
	}
}

// WithTokenBucket adds token bucket rate limiting to the executor.
func WithTokenBucket(tb *TokenBucket) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = tb
	}
}

// WithLeakyBucket adds leaky bucket rate limiting to the executor.
func WithLeakyBucket(lb *LeakyBucket) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = lb
	}
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout adds a deadline to the executor.
func WithTimeout(t *Timeout) ExecutorOption {
	return func(e *Executor) {
		e.timeout = t
	}
}

// Execute runs the operation through all configured resilience patterns.
//
// The execution order is:
//  1. Rate limiter (if configured) - limits request rate
//  2. Bulkhead (if configured) - limits concurrency
//  3. Circuit breaker (if configured) - prevents cascading failures
//  4. Retrier (if configured) - retries on failure
//  5. Timeout (if configured) - limits execution time
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.timeout.Execute(ctx, inner)
		}
	}

	if e.retrier != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.retrier.Execute(ctx, inner)
		}
	}

	if e.breaker != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.breaker.Execute(ctx, inner)
		}
	}

	if e.bulkhead != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}

	if e.rateLimiter != nil {
		inner := execute
		execute = func(ctx context.Context) error {
			return e.rateLimiter.Execute(ctx, inner)
		}
	}

	return execute(ctx)
}
