package observe

import (
	"context"
	"errors"
	"testing"
)

// TestNewTracingExporter_Unknown verifies unknown exporter names are rejected.
func TestNewTracingExporter_Unknown(t *testing.T) {
	_, err := newTracingExporter(context.Background(), "zipkin")
	if !errors.Is(err, ErrInvalidTracingExporter) {
		t.Errorf("expected ErrInvalidTracingExporter, got %v", err)
	}
}

// TestNewTracingExporter_None verifies none and empty names produce a
// discarding exporter.
func TestNewTracingExporter_None(t *testing.T) {
	for _, name := range []string{"none", ""} {
		exp, err := newTracingExporter(context.Background(), name)
		if err != nil {
			t.Errorf("name %q: unexpected error: %v", name, err)
		}
		if exp == nil {
			t.Errorf("name %q: expected exporter, got nil", name)
		}
	}
}

// TestNewTracingExporter_Stdout verifies the stdout exporter is created.
func TestNewTracingExporter_Stdout(t *testing.T) {
	exp, err := newTracingExporter(context.Background(), "stdout")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp == nil {
		t.Fatal("expected exporter, got nil")
	}
}

// TestNewTracingExporter_OTLPMissingEndpoint verifies OTLP requires an
// endpoint environment variable.
func TestNewTracingExporter_OTLPMissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	_, err := newTracingExporter(context.Background(), "otlp")
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("expected ErrEndpointNotConfigured, got %v", err)
	}
}

// TestNewTracingExporter_JaegerMissingEndpoint verifies jaeger requires an
// endpoint environment variable.
func TestNewTracingExporter_JaegerMissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_JAEGER_ENDPOINT", "")

	_, err := newTracingExporter(context.Background(), "jaeger")
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("expected ErrEndpointNotConfigured, got %v", err)
	}
}

// TestNewMetricsReader_Unknown verifies unknown exporter names are rejected.
func TestNewMetricsReader_Unknown(t *testing.T) {
	_, err := newMetricsReader(context.Background(), "statsd")
	if !errors.Is(err, ErrInvalidMetricsExporter) {
		t.Errorf("expected ErrInvalidMetricsExporter, got %v", err)
	}
}

// TestNewMetricsReader_None verifies none and empty names produce a
// discarding reader.
func TestNewMetricsReader_None(t *testing.T) {
	for _, name := range []string{"none", ""} {
		reader, err := newMetricsReader(context.Background(), name)
		if err != nil {
			t.Errorf("name %q: unexpected error: %v", name, err)
			continue
		}
		if reader == nil {
			t.Errorf("name %q: expected reader, got nil", name)
			continue
		}
		_ = reader.Shutdown(context.Background())
	}
}

// TestNewMetricsReader_OTLPMissingEndpoint verifies OTLP requires an
// endpoint environment variable.
func TestNewMetricsReader_OTLPMissingEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	_, err := newMetricsReader(context.Background(), "otlp")
	if !errors.Is(err, ErrEndpointNotConfigured) {
		t.Errorf("expected ErrEndpointNotConfigured, got %v", err)
	}
}
