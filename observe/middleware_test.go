package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jonwraymond/guardrail/resilience"
)

func newTestMiddleware(t *testing.T) (*Middleware, *bytes.Buffer, func() metricdata.ResourceMetrics) {
	t.Helper()

	m, reader := newTestMetrics(t)
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	mw := NewMiddleware(newNoopTracer(), m, logger)

	collect := func() metricdata.ResourceMetrics {
		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("failed to collect metrics: %v", err)
		}
		return rm
	}
	return mw, &buf, collect
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	found := findMetric(rm, name)
	if found == nil {
		return 0
	}
	sum, ok := found.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64] for %s, got %T", name, found.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

// TestMiddleware_InstrumentWrapsGuard verifies the instrumented guard still
// runs the operation through the inner guard and records telemetry.
func TestMiddleware_InstrumentWrapsGuard(t *testing.T) {
	mw, buf, collect := newTestMiddleware(t)

	cb, err := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	if err != nil {
		t.Fatalf("failed to create circuit breaker: %v", err)
	}

	target := Target{Resource: "payments", Name: "charge"}
	guard := mw.Instrument(target, cb)

	called := false
	if err := guard.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !called {
		t.Error("operation was not called")
	}
	if cb.Metrics().TotalCalls != 1 {
		t.Errorf("expected inner guard to see 1 call, got %d", cb.Metrics().TotalCalls)
	}

	rm := collect()
	if got := counterValue(t, rm, "guard.exec.total"); got != 1 {
		t.Errorf("expected total 1, got %d", got)
	}
	if got := counterValue(t, rm, "guard.exec.errors"); got != 0 {
		t.Errorf("expected 0 errors, got %d", got)
	}

	out := buf.String()
	if !strings.Contains(out, "guarded execution completed") {
		t.Errorf("expected completion log, got %q", out)
	}
	if !strings.Contains(out, `"guard.id":"payments.charge"`) {
		t.Errorf("expected target id in log, got %q", out)
	}
}

// TestMiddleware_WrapPropagatesError verifies operation errors are recorded
// and returned unchanged.
func TestMiddleware_WrapPropagatesError(t *testing.T) {
	mw, buf, collect := newTestMiddleware(t)

	opErr := errors.New("backend unavailable")
	wrapped := mw.Wrap(Target{Name: "lookup"}, func(ctx context.Context) error {
		return opErr
	})

	err := wrapped(context.Background())
	if !errors.Is(err, opErr) {
		t.Errorf("expected original error, got %v", err)
	}

	rm := collect()
	if got := counterValue(t, rm, "guard.exec.errors"); got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
	if got := counterValue(t, rm, "guard.exec.rejections"); got != 0 {
		t.Errorf("expected 0 rejections, got %d", got)
	}

	if !strings.Contains(buf.String(), "guarded execution failed") {
		t.Errorf("expected failure log, got %q", buf.String())
	}
}

// TestMiddleware_RejectionLogsWarn verifies guard rejections are counted and
// logged separately from operation failures.
func TestMiddleware_RejectionLogsWarn(t *testing.T) {
	mw, buf, collect := newTestMiddleware(t)

	wrapped := mw.Wrap(Target{Name: "limited"}, func(ctx context.Context) error {
		return resilience.ErrRateLimitExceeded
	})

	if err := wrapped(context.Background()); !errors.Is(err, resilience.ErrRateLimitExceeded) {
		t.Errorf("expected rate limit error, got %v", err)
	}

	rm := collect()
	if got := counterValue(t, rm, "guard.exec.rejections"); got != 1 {
		t.Errorf("expected 1 rejection, got %d", got)
	}
	if got := counterValue(t, rm, "guard.exec.errors"); got != 0 {
		t.Errorf("expected 0 errors, got %d", got)
	}

	out := buf.String()
	if !strings.Contains(out, "guarded execution rejected") {
		t.Errorf("expected rejection log, got %q", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level, got %q", out)
	}
}

// TestMiddleware_StateChangeHook verifies the hook records a transition
// metric and a warn log.
func TestMiddleware_StateChangeHook(t *testing.T) {
	mw, buf, collect := newTestMiddleware(t)

	hook := mw.StateChangeHook(Target{Resource: "payments", Name: "charge"})
	hook(resilience.StateClosed, resilience.StateOpen)

	rm := collect()
	if got := counterValue(t, rm, "guard.breaker.transitions"); got != 1 {
		t.Errorf("expected 1 transition, got %d", got)
	}

	out := buf.String()
	if !strings.Contains(out, "circuit state changed") {
		t.Errorf("expected transition log, got %q", out)
	}
	if !strings.Contains(out, `"from":"closed"`) || !strings.Contains(out, `"to":"open"`) {
		t.Errorf("expected from/to fields, got %q", out)
	}
}

// TestMiddleware_HookWiredToBreaker verifies the hook fires when wired into
// a circuit breaker's OnStateChange.
func TestMiddleware_HookWiredToBreaker(t *testing.T) {
	mw, _, collect := newTestMiddleware(t)

	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = 2
	cfg.OnStateChange = mw.StateChangeHook(Target{Name: "flaky"})

	cb, err := resilience.NewCircuitBreaker(cfg)
	if err != nil {
		t.Fatalf("failed to create circuit breaker: %v", err)
	}

	opErr := errors.New("boom")
	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return opErr
		})
	}

	if cb.State() != resilience.StateOpen {
		t.Fatalf("expected open state, got %v", cb.State())
	}

	rm := collect()
	if got := counterValue(t, rm, "guard.breaker.transitions"); got != 1 {
		t.Errorf("expected 1 transition, got %d", got)
	}
}

// TestMiddlewareFromObserver verifies construction from an observer.
func TestMiddlewareFromObserver(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "guardrail-test"})
	if err != nil {
		t.Fatalf("failed to create observer: %v", err)
	}

	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mw == nil {
		t.Fatal("expected middleware, got nil")
	}

	// Wrapped operations run through the noop stack without error.
	wrapped := mw.Wrap(Target{Name: "noop_op"}, func(ctx context.Context) error {
		return nil
	})
	if err := wrapped(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestMiddlewareFromObserver_Nil verifies nil observer is rejected.
func TestMiddlewareFromObserver_Nil(t *testing.T) {
	_, err := MiddlewareFromObserver(nil)
	if !errors.Is(err, ErrNilObserver) {
		t.Errorf("expected ErrNilObserver, got %v", err)
	}
}
