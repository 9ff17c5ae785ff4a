// Package telemetry wraps the OpenTelemetry tracing SDK behind a small
// process-wide Tracer, the same shape dittofs's own internal/telemetry
// package exposes. Unlike dittofs, this system has no OTLP collector
// endpoint in its Configuration surface, so Init wires the SDK's
// resource/sampler plumbing without an exporter attached: spans are
// still created and propagated through context the normal way, which is
// enough to correlate a role run's child spans (an NBD session, a
// management command) without requiring an operator to stand up a
// collector just to run the bridge.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	tracerOnce sync.Once
	tracer     trace.Tracer
)

// Init installs a process-wide TracerProvider stamped with serviceName
// and returns a shutdown function to flush it at exit.
func Init(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(serviceName)

	return provider.Shutdown, nil
}

// Tracer returns the process-wide tracer, falling back to the global
// no-op tracer if Init was never called (e.g. in unit tests).
func Tracer() trace.Tracer {
	tracerOnce.Do(func() {
		if tracer == nil {
			tracer = otel.Tracer("xoebridge")
		}
	})
	return tracer
}

// StartSpan starts a span named name and returns the derived context.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError records err on ctx's span and marks it failed, a no-op
// when err is nil.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
}
