package logging

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type TracingOptions struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

// SetupTracing registers a global OTLP/HTTP tracer provider. When tracing is
// disabled the returned shutdown is a no-op and the global provider stays the
// default no-op one.
func SetupTracing(ctx context.Context, opts TracingOptions) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !opts.Enabled || opts.Endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", opts.ServiceName),
	))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
