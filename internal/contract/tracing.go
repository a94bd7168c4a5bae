package contract

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/multierr"
)

// Tracing owns a tracer provider that exports finished spans as JSON lines.
type Tracing struct {
	Provider *sdktrace.TracerProvider
	file     *os.File
}

// NewTracing creates path and exports every span to it.
func NewTracing(path, serviceVersion string) (*Tracing, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(file))
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("could not create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "epss"),
		attribute.String("service.version", serviceVersion),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return &Tracing{Provider: tp, file: file}, nil
}

// Shutdown flushes pending spans and closes the trace file.
func (t *Tracing) Shutdown(ctx context.Context) error {
	return multierr.Combine(t.Provider.Shutdown(ctx), t.file.Close())
}
