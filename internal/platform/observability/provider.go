package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TraceExporter names the span exporter installed by SetupTracing.
type TraceExporter string

const (
	TraceExporterNone   TraceExporter = "none"
	TraceExporterStdout TraceExporter = "stdout"
)

// SetupTracing installs the global propagator and tracer provider and returns the provider's
// shutdown hook. With TraceExporterNone the global no-op provider is left untouched.
func SetupTracing(ctx context.Context, serviceName string, exporter TraceExporter) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	otel.SetTextMapPropagator(Propagator)

	switch TraceExporter(strings.ToLower(strings.TrimSpace(string(exporter)))) {
	case "", TraceExporterNone:
		return noop, nil
	case TraceExporterStdout:
	default:
		return noop, fmt.Errorf("observability: unsupported trace exporter %q", exporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	if err != nil {
		return noop, fmt.Errorf("observability: create stdout exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(serviceName)))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
