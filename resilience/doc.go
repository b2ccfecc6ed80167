// Package resilience provides in-process fault-tolerance primitives.
//
// The package implements the common resilience patterns as independent,
// composable guards. Each guard makes an admission decision before
// invoking the wrapped operation and records the observed outcome after
// it returns. The guards perform no I/O and know nothing about HTTP or
// databases; they operate purely on caller-supplied operations.
//
// # Patterns
//
//   - Circuit Breaker: stops calling a failing dependency after a run of
//     consecutive failures, probing for recovery through a half-open
//     state.
//
//   - Adaptive Circuit Breaker: wraps a circuit breaker with a sliding
//     window of outcomes and a latency histogram, retuning the failure
//     threshold toward a target error rate.
//
//   - Retrier: repeats failed operations under a pluggable backoff
//     (fixed, linear, exponential, custom), jitter (none, full, equal,
//     decorrelated), and retry policy, bounded by attempt and total-time
//     budgets.
//
//   - Token Bucket / Leaky Bucket: rate limiters; the token bucket
//     tolerates bursts up to a capacity, the leaky bucket enforces a
//     smoothed ceiling.
//
//   - Bulkhead: limits concurrent operations with a bounded wait queue.
//
//   - Timeout: bounds an operation's execution time.
//
//   - Histogram: lock-free latency recorder with logarithmic buckets and
//     snapshot percentiles.
//
// # Usage
//
// Each guard is created once, validated at construction, and held for
// the lifetime of the guarded resource:
//
//	cb, err := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    SuccessThreshold: 2,
//	    Timeout:          30 * time.Second,
//	    HalfOpenMaxCalls: 1,
//	})
//	if err != nil {
//	    return err
//	}
//
//	err = cb.Execute(ctx, func(ctx context.Context) error {
//	    return callExternalService(ctx)
//	})
//
// Guards compose; the Executor chains them in a fixed order:
//
//	retrier, _ := resilience.NewRetrier(resilience.DefaultRetryConfig())
//	executor := resilience.NewExecutor(
//	    resilience.WithCircuitBreaker(cb),
//	    resilience.WithRetrier(retrier),
//	)
//	err = executor.Execute(ctx, op)
//
// Value-returning operations go through the generic Run helper:
//
//	user, err := resilience.Run(ctx, cb, func(ctx context.Context) (*User, error) {
//	    return client.GetUser(ctx, id)
//	})
//
// Every timed guard accepts a clock.Clock, so tests drive state-machine
// timing deterministically with a mock clock instead of sleeping.
package resilience
