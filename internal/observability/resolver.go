package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ResolverMetrics records resolve outcomes, oracle calls and feedback votes.
type ResolverMetrics interface {
	RecordResolve(ctx context.Context, outcome string)
	RecordOracleCall(ctx context.Context, provider, status string, duration time.Duration)
	RecordFeedback(ctx context.Context, applied, unknown int)
}

type resolverMetrics struct {
	resolves       metric.Int64Counter
	oracleCalls    metric.Int64Counter
	oracleDuration metric.Float64Histogram
	increments     metric.Int64Counter
	unknownIDs     metric.Int64Counter
}

// NewResolverMetrics creates ResolverMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewResolverMetrics(meter metric.Meter) (ResolverMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	resolves, err := meter.Int64Counter(
		MetricNameResolveRequests,
		metric.WithDescription("Resolve requests by outcome (hit, generated, fallback, error)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create resolve requests counter: %w", err)
	}

	oracleCalls, err := meter.Int64Counter(
		MetricNameOracleCalls,
		metric.WithDescription("Oracle completion calls by provider and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create oracle calls counter: %w", err)
	}

	oracleDuration, err := meter.Float64Histogram(
		MetricNameOracleDuration,
		metric.WithDescription("Oracle completion call duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create oracle duration histogram: %w", err)
	}

	increments, err := meter.Int64Counter(
		MetricNameFeedbackIncrements,
		metric.WithDescription("Success count increments applied from feedback"),
	)
	if err != nil {
		return nil, fmt.Errorf("create feedback increments counter: %w", err)
	}

	unknownIDs, err := meter.Int64Counter(
		MetricNameFeedbackUnknownIDs,
		metric.WithDescription("Feedback solution ids that matched no stored solution"),
	)
	if err != nil {
		return nil, fmt.Errorf("create feedback unknown ids counter: %w", err)
	}

	return &resolverMetrics{
		resolves:       resolves,
		oracleCalls:    oracleCalls,
		oracleDuration: oracleDuration,
		increments:     increments,
		unknownIDs:     unknownIDs,
	}, nil
}

func (m *resolverMetrics) RecordResolve(ctx context.Context, outcome string) {
	outcome = NormalizeLabel(outcome, AllowedResolveOutcomes)
	m.resolves.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

func (m *resolverMetrics) RecordOracleCall(ctx context.Context, provider, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrProvider, NormalizeLabel(provider, AllowedOracleProviders)),
		attribute.String(AttrStatus, NormalizeLabel(status, AllowedOracleStatuses)),
	)
	m.oracleCalls.Add(ctx, 1, attrs)
	m.oracleDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *resolverMetrics) RecordFeedback(ctx context.Context, applied, unknown int) {
	if applied > 0 {
		m.increments.Add(ctx, int64(applied))
	}

	if unknown > 0 {
		m.unknownIDs.Add(ctx, int64(unknown))
	}
}
