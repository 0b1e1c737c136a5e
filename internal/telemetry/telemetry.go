// Package telemetry installs the process-wide OpenTelemetry tracer provider
// and W3C trace-context propagator.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	ExporterNone   = ""
	ExporterStdout = "stdout"
)

// Setup makes spans real for the rest of the process. With ExporterNone spans
// are recorded and propagated but not exported; ExporterStdout writes
// finished spans as JSON to w. The returned func flushes and stops the
// provider.
func Setup(exporter string, w io.Writer) (func(context.Context) error, error) {
	var opts []sdktrace.TracerProviderOption
	switch exporter {
	case ExporterNone:
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
