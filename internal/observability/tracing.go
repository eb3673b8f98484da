package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fixdesk/hub"

var errUnsupportedTracesExporter = errors.New("unsupported traces exporter")

// newSpanExporter builds the exporter named by OTEL_TRACES_EXPORTER. The OTLP exporter reads
// OTEL_EXPORTER_OTLP_ENDPOINT (and scheme/insecure) from the environment; stdout writes to stderr
// so it does not interleave with access logs.
func newSpanExporter(ctx context.Context, kind string) (sdktrace.SpanExporter, error) {
	switch kind {
	case "otlp":
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create OTLP HTTP trace exporter: %w", err)
		}

		return exp, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}

		return exp, nil
	default:
		return nil, fmt.Errorf("%w %q", errUnsupportedTracesExporter, kind)
	}
}

// StartOracleSpan starts a client span around one oracle completion. It uses the global
// tracer provider, which is a no-op until tracing is enabled.
func StartOracleSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "oracle.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String(AttrProvider, provider)),
	)
}

// EndOracleSpan tags the span with the call status, records err and ends the span.
func EndOracleSpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String(AttrStatus, status))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}

	span.End()
}
