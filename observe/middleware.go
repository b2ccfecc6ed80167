package observe

import (
	"context"
	"time"

	"github.com/jonwraymond/guardrail/resilience"
)

// Middleware wraps guarded execution with observability (tracing, metrics,
// logging).
//
// Contract:
//   - Concurrency: wrapped guards and functions are safe for concurrent use.
//   - Context: propagates context through tracing spans.
//   - Errors: errors from the wrapped operation are recorded and propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware with the given observability
// components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// instrumentedGuard is a resilience.Guard that records telemetry around an
// inner guard.
type instrumentedGuard struct {
	m      *Middleware
	target Target
	inner  resilience.Guard
}

// Instrument wraps a resilience guard so every Execute is traced, measured,
// and logged under the target's identity. The returned guard composes like
// any other.
func (m *Middleware) Instrument(target Target, g resilience.Guard) resilience.Guard {
	return &instrumentedGuard{m: m, target: target, inner: g}
}

// Execute implements resilience.Guard.
func (ig *instrumentedGuard) Execute(ctx context.Context, op func(context.Context) error) error {
	return ig.m.run(ctx, ig.target, func(ctx context.Context) error {
		return ig.inner.Execute(ctx, op)
	})
}

// Wrap wraps a bare operation with tracing, metrics, and logging, without
// any guard in between.
func (m *Middleware) Wrap(target Target, op func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return m.run(ctx, target, op)
	}
}

func (m *Middleware) run(ctx context.Context, target Target, op func(context.Context) error) error {
	// Start span
	ctx, span := m.tracer.StartSpan(ctx, target)

	// Record start time
	start := time.Now()

	// Execute the function
	err := op(ctx)

	// Calculate duration
	duration := time.Since(start)

	// End span (records error status if err != nil)
	m.tracer.EndSpan(span, err)

	// Record metrics
	m.metrics.RecordExecution(ctx, target, duration, err)

	// Log the execution
	targetLogger := m.logger.WithTarget(target)
	fields := []Field{
		{Key: "duration_ms", Value: float64(duration.Milliseconds())},
	}

	switch {
	case err == nil:
		targetLogger.Info(ctx, "guarded execution completed", fields...)
	case isRejection(err):
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		targetLogger.Warn(ctx, "guarded execution rejected", fields...)
	default:
		fields = append(fields, Field{Key: "error", Value: err.Error()})
		targetLogger.Error(ctx, "guarded execution failed", fields...)
	}

	return err
}

// StateChangeHook returns a callback suitable for a circuit breaker's
// OnStateChange, recording transitions as metrics and log lines.
func (m *Middleware) StateChangeHook(target Target) func(from, to resilience.State) {
	targetLogger := m.logger.WithTarget(target)
	return func(from, to resilience.State) {
		ctx := context.Background()
		m.metrics.RecordStateChange(ctx, target, from, to)
		targetLogger.Warn(ctx, "circuit state changed",
			Field{Key: "from", Value: from.String()},
			Field{Key: "to", Value: to.String()},
		)
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
// This is a convenience function for common use cases.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	tracer := newTracer(obs.Tracer())

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(tracer, metrics, obs.Logger()), nil
}
