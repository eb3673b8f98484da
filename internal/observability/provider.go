package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	prometheusexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/fixdesk/hub/internal/config"
)

const (
	serviceName          = "solutions-hub"
	metricExportInterval = 60 * time.Second
	cardinalityLimit     = 2000
)

// durationHistogramBounds are second-based buckets. Oracle calls run for seconds, so the upper
// end reaches the default ORACLE_TIMEOUT.
var durationHistogramBounds = []float64{0, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30}

// newResource returns a single-schema resource carrying the service name.
func newResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

// NewMeterProvider creates a MeterProvider for cfg.OtelMetricsExporter.
// "prometheus" also returns the /metrics handler; "otlp" pushes periodically and returns a nil handler.
// When the exporter is empty, returns (nil, nil, nil).
func NewMeterProvider(cfg *config.Config) (*sdkmetric.MeterProvider, http.Handler, error) {
	if cfg == nil || cfg.OtelMetricsExporter == "" {
		return nil, nil, nil
	}

	var (
		reader  sdkmetric.Reader
		handler http.Handler
	)

	switch cfg.OtelMetricsExporter {
	case "prometheus":
		reg := prometheus.NewRegistry()

		exp, err := prometheusexporter.New(prometheusexporter.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		reader = exp
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case "otlp":
		// SDK reads OTEL_EXPORTER_OTLP_ENDPOINT (and scheme/insecure) from env.
		exp, err := otlpmetrichttp.New(context.Background())
		if err != nil {
			return nil, nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}

		reader = sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricExportInterval))
	default:
		return nil, nil, fmt.Errorf("unsupported metrics exporter %q", cfg.OtelMetricsExporter)
	}

	view := sdkmetric.NewView(
		sdkmetric.Instrument{Name: "hub_*_duration_seconds"},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationHistogramBounds}},
	)

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(newResource()),
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(view),
		sdkmetric.WithCardinalityLimit(cardinalityLimit),
	)

	return provider, handler, nil
}

// ShutdownMeterProvider flushes and shuts down the MeterProvider. Safe to call with nil.
func ShutdownMeterProvider(ctx context.Context, provider *sdkmetric.MeterProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}

	return nil
}

// NewTracerProvider creates a TracerProvider when tracing is enabled.
// When cfg.OtelTracesExporter is empty, returns (nil, nil).
func NewTracerProvider(cfg *config.Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil || cfg.OtelTracesExporter == "" {
		//nolint:nilnil // intentional: tracing disabled, caller checks for nil
		return nil, nil
	}

	exp, err := newSpanExporter(context.Background(), cfg.OtelTracesExporter)
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(newResource()),
		sdktrace.WithSampler(newSampler()),
		sdktrace.WithBatcher(exp),
	), nil
}

// ShutdownTracerProvider flushes and shuts down the TracerProvider. Safe to call with nil.
func ShutdownTracerProvider(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}

	if err := provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}

	return nil
}
