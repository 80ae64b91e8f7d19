package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config captures the knobs for wiring the process-local tracer provider. The
// heartbeat core runs as a short-lived, cron-invoked process with no
// always-on collector to export to, so traces stay in-process: they give the
// orchestrator span-shaped structure for stage timing without requiring a
// network dependency on the cycle's hot path.
type Config struct {
	ServiceName string
	Environment string
}

// Init configures the global tracer provider and returns a shutdown function
// callers should invoke (via defer) at the end of main.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("observability/otel: service name required")
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("observability/otel: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the named tracer used by the orchestrator to annotate each
// cycle and stage with a span.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
