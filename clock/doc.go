// Package clock provides a time source abstraction for the guardrail
// primitives.
//
// Every timed component in this module (circuit breaker, retry, rate
// limiters, bulkhead) reads time through a Clock rather than calling
// time.Now directly. Production code uses the real monotonic clock;
// tests inject a Mock and advance it deterministically, so state-machine
// timing can be asserted without real sleeps.
//
// # Usage
//
//	// Production: the zero-value configs default to the real clock.
//	cb, err := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    Timeout:          30 * time.Second,
//	})
//
//	// Tests: inject a mock and drive time by hand.
//	mock := clock.NewMock(time.Unix(0, 0))
//	cb, err := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//	    FailureThreshold: 5,
//	    Timeout:          30 * time.Second,
//	    Clock:            mock,
//	})
//	mock.Advance(30 * time.Second) // open -> half-open without waiting
package clock
