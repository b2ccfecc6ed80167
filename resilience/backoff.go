package resilience

import (
	"math"
	"time"
)

// Backoff computes the pre-jitter delay before the next retry attempt.
// attempt is 1-based and names the attempt that just failed, so the delay
// after the first failure is Delay(1).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// BackoffFunc adapts a function to the Backoff interface, for
// caller-supplied delay schedules.
type BackoffFunc func(attempt int) time.Duration

// Delay implements Backoff.
func (f BackoffFunc) Delay(attempt int) time.Duration {
	return f(attempt)
}

// FixedBackoff waits the same interval between every attempt.
type FixedBackoff struct {
	Interval time.Duration
}

// Delay implements Backoff.
func (b FixedBackoff) Delay(int) time.Duration {
	return b.Interval
}

// LinearBackoff grows the delay by a fixed increment per attempt:
// Initial, Initial+Increment, Initial+2*Increment, ...
type LinearBackoff struct {
	Initial   time.Duration
	Increment time.Duration
}

// Delay implements Backoff.
func (b LinearBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.Initial + time.Duration(attempt-1)*b.Increment
}

// ExponentialBackoff multiplies the delay by Base per attempt:
// Initial, Initial*Base, Initial*Base^2, ... capped at MaxDelay.
type ExponentialBackoff struct {
	Initial  time.Duration
	Base     float64
	MaxDelay time.Duration
}

// Delay implements Backoff.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(float64(b.Initial) * math.Pow(b.Base, float64(attempt-1)))
	if b.MaxDelay > 0 && (d > b.MaxDelay || d < 0) {
		// d < 0 means the float blew past the int64 range.
		d = b.MaxDelay
	}
	return d
}

// Jitter randomizes a computed backoff delay to avoid synchronized retry
// storms. prev is the previous post-jitter delay in this retry run (zero
// on the first application); rnd yields uniform values in [0, 1).
type Jitter interface {
	Apply(delay, prev time.Duration, rnd func() float64) time.Duration
}

// NoJitter leaves the delay unchanged.
type NoJitter struct{}

// Apply implements Jitter.
func (NoJitter) Apply(delay, _ time.Duration, _ func() float64) time.Duration {
	return delay
}

// FullJitter randomizes uniformly in [0, delay].
type FullJitter struct{}

// Apply implements Jitter.
func (FullJitter) Apply(delay, _ time.Duration, rnd func() float64) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rnd() * float64(delay))
}

// EqualJitter randomizes uniformly in [delay/2, delay], keeping at least
// half the computed backoff.
type EqualJitter struct{}

// Apply implements Jitter.
func (EqualJitter) Apply(delay, _ time.Duration, rnd func() float64) time.Duration {
	if delay <= 0 {
		return 0
	}
	half := delay / 2
	return half + time.Duration(rnd()*float64(delay-half))
}

// DecorrelatedJitter randomizes in [Base, prev*3], carrying the previous
// delay between attempts so consecutive sleeps drift apart instead of
// tracking the backoff curve. An empty prev seeds from Base.
type DecorrelatedJitter struct {
	Base time.Duration
}

// Apply implements Jitter.
func (j DecorrelatedJitter) Apply(_, prev time.Duration, rnd func() float64) time.Duration {
	if prev < j.Base {
		prev = j.Base
	}

	upper := prev * 3
	if upper <= j.Base {
		return j.Base
	}
	return j.Base + time.Duration(rnd()*float64(upper-j.Base))
}
