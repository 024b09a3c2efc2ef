// Package tracing wires a minimal OpenTelemetry tracer for MediaButler: spans
// are recorded in-process and never shipped to a collector, since a
// single-user NAS box has nowhere to send them (SPEC_FULL.md A.6). Organizer
// uses this to wrap each of its 7 steps in a named span.
package tracing

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider owns the process-wide TracerProvider.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider installs a TracerProvider. When enabled is false, a no-op
// provider is installed instead (tracing has near-zero cost but stays
// disableable for constrained ARM32 deployments).
func NewProvider(enabled bool) *Provider {
	if !enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}
	}
	tp := sdktrace.NewTracerProvider() // no span processor: spans are created and discarded, not exported
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}
}

// Shutdown releases the tracer provider's resources, if any were allocated.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

// Tracer returns the named tracer, the same instrumentation-library pattern
// the corpus uses for its own span-producing code.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartStep starts a span named "<component>.step.<n>" carrying fileHash as
// an attribute (spec §4.9's per-step span requirement).
func StartStep(ctx context.Context, tracerName, component string, n int, fileHash string) (context.Context, trace.Span) {
	ctx, span := Tracer(tracerName).Start(ctx, component+".step."+strconv.Itoa(n))
	span.SetAttributes(attribute.String("file_hash", fileHash))
	return ctx, span
}
