package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/greynet/internal/ir"
)

// ErrUnknownExporter is returned for an unsupported exporter name.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// ServiceName identifies greynet in traces.
const ServiceName = "greynet"

// TracerProvider builds a tracer provider for the named exporter: "none"
// (or "") or "stdout", which writes pretty-printed spans to w. The returned
// shutdown flushes pending spans.
func TracerProvider(exporter string, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	switch exporter {
	case "", "none":
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		res := resource.NewWithAttributes("",
			attribute.String("service.name", ServiceName),
			attribute.String("service.version", ir.EngineVersion),
		)
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		return tp, tp.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, exporter)
	}
}
