// Package observe provides observability primitives for guarded operations.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. Consumers wrap resilience guards through the
// middleware or use the tracer, metrics, and logger directly.
package observe
