package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all hub metric collectors. When metrics are disabled, all fields are nil.
// Components that accept an interface (ResolverMetrics, APIMetrics) can receive the
// corresponding field; they already handle nil.
type Metrics struct {
	Resolver ResolverMetrics
	API      APIMetrics
}

// NewMetrics creates ResolverMetrics and APIMetrics from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	resolver, err := NewResolverMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("resolver metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Resolver: resolver,
		API:      api,
	}, nil
}
