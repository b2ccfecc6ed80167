package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/guardrail/resilience"
)

// Metrics records execution metrics for guarded operations.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordExecution records a guarded execution with duration and error
	// status. Guard rejections (open circuit, rate limit, full bulkhead)
	// are counted separately from operation failures.
	RecordExecution(ctx context.Context, target Target, duration time.Duration, err error)

	// RecordStateChange records a circuit breaker state transition.
	RecordStateChange(ctx context.Context, target Target, from, to resilience.State)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter          metric.Meter
	totalCount     metric.Int64Counter
	errorCount     metric.Int64Counter
	rejectionCount metric.Int64Counter
	transitions    metric.Int64Counter
	durationHist   metric.Float64Histogram
}

// newMetrics creates a new Metrics instance with the given meter.
func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		"guard.exec.total",
		metric.WithDescription("Total number of guarded executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"guard.exec.errors",
		metric.WithDescription("Total number of guarded execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	rejectionCount, err := meter.Int64Counter(
		"guard.exec.rejections",
		metric.WithDescription("Executions rejected by a guard before running"),
		metric.WithUnit("{rejection}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"guard.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"guard.exec.duration_ms",
		metric.WithDescription("Guarded execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:          meter,
		totalCount:     totalCount,
		errorCount:     errorCount,
		rejectionCount: rejectionCount,
		transitions:    transitions,
		durationHist:   durationHist,
	}, nil
}

// isRejection reports whether the error came from a guard refusing the
// call rather than from the operation itself.
func isRejection(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, resilience.ErrRateLimitExceeded) ||
		errors.Is(err, resilience.ErrBulkheadFull)
}

// RecordExecution records metrics for a guarded execution.
func (m *metricsImpl) RecordExecution(ctx context.Context, target Target, duration time.Duration, err error) {
	// Build common attributes
	attrs := []attribute.KeyValue{
		attribute.String("guard.id", target.TargetID()),
		attribute.String("guard.name", target.Name),
	}

	// Add resource if present
	if target.Resource != "" {
		attrs = append(attrs, attribute.String("guard.resource", target.Resource))
	}

	opt := metric.WithAttributes(attrs...)

	// Always increment total counter
	m.totalCount.Add(ctx, 1, opt)

	switch {
	case err == nil:
	case isRejection(err):
		m.rejectionCount.Add(ctx, 1, opt)
	default:
		m.errorCount.Add(ctx, 1, opt)
	}

	// Record duration in milliseconds
	durationMs := float64(duration.Milliseconds())
	m.durationHist.Record(ctx, durationMs, opt)
}

// RecordStateChange records a circuit breaker transition for the target.
func (m *metricsImpl) RecordStateChange(ctx context.Context, target Target, from, to resilience.State) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("guard.id", target.TargetID()),
		attribute.String("guard.name", target.Name),
		attribute.String("guard.state.from", from.String()),
		attribute.String("guard.state.to", to.String()),
	))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

func (m *noopMetrics) RecordExecution(ctx context.Context, target Target, duration time.Duration, err error) {
}

func (m *noopMetrics) RecordStateChange(ctx context.Context, target Target, from, to resilience.State) {
}
