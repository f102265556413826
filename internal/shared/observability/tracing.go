package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "crossmod"

// Tracer is the process-wide tracer. It forwards to whatever provider is
// installed globally, so spans are no-ops until SetupTracing succeeds.
var Tracer trace.Tracer = otel.Tracer(tracerName)

// TracingConfig selects the OTLP collector. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// SetupTracing installs a batching OTLP/gRPC tracer provider. The returned
// function flushes and shuts it down.
func SetupTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = tracerName
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
	otel.SetTracerProvider(provider)
	Tracer = provider.Tracer(tracerName)

	return provider.Shutdown, nil
}

// StartPhase opens a span for one cycle phase and returns a function that ends
// it and records the phase duration.
func StartPhase(ctx context.Context, phase string, attrs ...attribute.KeyValue) (context.Context, func()) {
	started := time.Now()
	ctx, span := Tracer.Start(ctx, "cycle."+phase, trace.WithAttributes(attrs...))
	return ctx, func() {
		PhaseDuration.WithLabelValues(phase).Observe(time.Since(started).Seconds())
		span.End()
	}
}
