package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/guardrail/clock"
)

func TestCircuitBreaker_ConcurrentExecute(t *testing.T) {
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 1 << 30, // never opens in this test
		SuccessThreshold: 1,
		Timeout:          time.Second,
		HalfOpenMaxCalls: 1,
	})

	const (
		workers = 8
		perG    = 500
	)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perG; i++ {
				err := cb.Execute(context.Background(), func(context.Context) error {
					if (w+i)%2 == 0 {
						return errTransient
					}
					return nil
				})
				if err != nil && !errors.Is(err, errTransient) {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Execute error = %v", err)
	}

	m := cb.Metrics()
	if m.TotalCalls != workers*perG {
		t.Errorf("TotalCalls = %d, want %d", m.TotalCalls, workers*perG)
	}
	if m.Successes+m.Failures != workers*perG {
		t.Errorf("Successes+Failures = %d, want %d", m.Successes+m.Failures, workers*perG)
	}
	if m.Successes != workers*perG/2 {
		t.Errorf("Successes = %d, want %d", m.Successes, workers*perG/2)
	}
}

func TestCircuitBreaker_ConcurrentOpenEpisode(t *testing.T) {
	mk := clock.NewMock(time.Unix(0, 0))

	// A burst of concurrent failures must produce exactly one transition
	// to Open, however the goroutines interleave.
	var transitions atomic.Int32
	cb := newTestBreaker(t, CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
		Clock:            mk,
		OnStateChange: func(from, to State) {
			if to == StateOpen {
				transitions.Add(1)
			}
		},
	})

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				err := cb.Execute(context.Background(), func(context.Context) error {
					return errTransient
				})
				if err != nil && !errors.Is(err, errTransient) && !errors.Is(err, ErrCircuitOpen) {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Execute error = %v", err)
	}

	if got := transitions.Load(); got != 1 {
		t.Errorf("transitions to Open = %d, want exactly 1", got)
	}
	if got := cb.State(); got != StateOpen {
		t.Errorf("State() = %v, want Open", got)
	}
}

func TestTokenBucket_ConcurrentAllowAdmitsExactlyCapacity(t *testing.T) {
	mk := clock.NewMock(time.Unix(0, 0))
	tb := newTestTokenBucket(t, TokenBucketConfig{
		Capacity:       100,
		RefillAmount:   1,
		RefillInterval: time.Hour, // frozen clock, no refill during the test
		Clock:          mk,
	})

	var admitted atomic.Int64
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 100; i++ {
				if tb.Allow() {
					admitted.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Allow error = %v", err)
	}

	if got := admitted.Load(); got != 100 {
		t.Errorf("admitted = %d, want exactly capacity 100", got)
	}
}

func TestLeakyBucket_ConcurrentAllowAdmitsExactlyCapacity(t *testing.T) {
	mk := clock.NewMock(time.Unix(0, 0))
	lb := newTestLeakyBucket(t, LeakyBucketConfig{
		Capacity: 50,
		LeakRate: 0.000001, // effectively frozen
		Clock:    mk,
	})

	var admitted atomic.Int64
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if lb.Allow() {
					admitted.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Allow error = %v", err)
	}

	if got := admitted.Load(); got != 50 {
		t.Errorf("admitted = %d, want exactly capacity 50", got)
	}
}

func TestAdaptiveCircuitBreaker_ConcurrentExecute(t *testing.T) {
	cfg := DefaultAdaptiveConfig()
	cfg.WindowSize = 64
	// High enough that interleaved failures cannot trip the breaker.
	cfg.InitialFailureThreshold = 20
	acb := newTestAdaptive(t, cfg)

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				err := acb.Execute(context.Background(), func(context.Context) error {
					if (w+i)%10 == 0 {
						return errTransient
					}
					return nil
				})
				if err != nil && !errors.Is(err, errTransient) && !errors.Is(err, ErrCircuitOpen) {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Execute error = %v", err)
	}

	m := acb.Metrics()
	if m.WindowFill != m.WindowSize {
		t.Errorf("WindowFill = %d, want full window %d", m.WindowFill, m.WindowSize)
	}
	if m.CurrentFailureThreshold < cfg.MinFailureThreshold || m.CurrentFailureThreshold > cfg.MaxFailureThreshold {
		t.Errorf("CurrentFailureThreshold = %d, outside [%d, %d]",
			m.CurrentFailureThreshold, cfg.MinFailureThreshold, cfg.MaxFailureThreshold)
	}
}

func TestBulkhead_ConcurrentAcquireRelease(t *testing.T) {
	b := newTestBulkhead(t, BulkheadConfig{
		MaxConcurrent:  3,
		MaxQueue:       1000,
		AcquireTimeout: 0,
	})

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if err := b.Acquire(context.Background()); err != nil {
					return err
				}
				b.Release()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Acquire/Release error = %v", err)
	}

	m := b.Metrics()
	if m.Active != 0 {
		t.Errorf("Active = %d after drain, want 0", m.Active)
	}
	if m.Queued != 0 {
		t.Errorf("Queued = %d after drain, want 0", m.Queued)
	}
}
