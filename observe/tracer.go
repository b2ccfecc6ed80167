package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Target identifies a guarded operation for telemetry purposes.
type Target struct {
	ID       string   // Fully qualified target ID (resource.name or just name)
	Resource string   // Upstream resource or dependency (may be empty)
	Name     string   // Operation name (required)
	Pattern  string   // Resilience pattern guarding the call (optional)
	Labels   []string // Free-form labels (optional)
}

// SpanName returns the deterministic span name for this target.
// Format: guard.exec.<resource>.<name> or guard.exec.<name>
func (t Target) SpanName() string {
	if t.Resource != "" {
		return "guard.exec." + t.Resource + "." + t.Name
	}
	return "guard.exec." + t.Name
}

// TargetID returns the fully qualified target identifier.
// If the ID field is set, returns it. Otherwise constructs from resource
// and name.
func (t Target) TargetID() string {
	if t.ID != "" {
		return t.ID
	}
	if t.Resource != "" {
		return t.Resource + "." + t.Name
	}
	return t.Name
}

// Tracer wraps OpenTelemetry tracing with guard-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: StartSpan must honor cancellation/deadlines and return ctx.Err() when canceled.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a guarded execution.
	StartSpan(ctx context.Context, target Target) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with target metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, target Target) (context.Context, trace.Span) {
	spanName := target.SpanName()

	// Build attributes
	attrs := []attribute.KeyValue{
		attribute.String("guard.id", target.TargetID()),
		attribute.String("guard.name", target.Name),
		attribute.Bool("guard.error", false), // Will be updated in EndSpan if error
	}

	// Add resource if present
	if target.Resource != "" {
		attrs = append(attrs, attribute.String("guard.resource", target.Resource))
	}

	// Add optional attributes if present
	if target.Pattern != "" {
		attrs = append(attrs, attribute.String("guard.pattern", target.Pattern))
	}
	if len(target.Labels) > 0 {
		attrs = append(attrs, attribute.StringSlice("guard.labels", target.Labels))
	}

	ctx, span := t.tracer.Start(ctx, spanName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	return ctx, span
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("guard.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// newNoopTracer creates a no-op tracer.
func newNoopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, target Target) (context.Context, trace.Span) {
	return t.noop.Start(ctx, target.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
