// Package observability provides OpenTelemetry metrics and tracing for the solutions API.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameResolveRequests     = "hub_resolve_requests_total"
	MetricNameOracleCalls         = "hub_oracle_calls_total"
	MetricNameOracleDuration      = "hub_oracle_call_duration_seconds"
	MetricNameFeedbackIncrements  = "hub_feedback_increments_total"
	MetricNameFeedbackUnknownIDs  = "hub_feedback_unknown_ids_total"
	MetricNameRequestBodyTooLarge = "hub_request_body_too_large_total"
)

// Attribute keys.
const (
	AttrOutcome  = "outcome"
	AttrProvider = "provider"
	AttrStatus   = "status"
)

// Resolve outcomes.
const (
	ResolveOutcomeHit       = "hit"
	ResolveOutcomeGenerated = "generated"
	ResolveOutcomeFallback  = "fallback"
	ResolveOutcomeError     = "error"
)

// Oracle call statuses.
const (
	OracleStatusSuccess     = "success"
	OracleStatusError       = "error"
	OracleStatusTimeout     = "timeout"
	OracleStatusRateLimited = "rate_limited"
)

// AllowedResolveOutcomes for hub_resolve_requests_total.
var AllowedResolveOutcomes = map[string]bool{
	ResolveOutcomeHit:       true,
	ResolveOutcomeGenerated: true,
	ResolveOutcomeFallback:  true,
	ResolveOutcomeError:     true,
}

// AllowedOracleStatuses for hub_oracle_calls_total and hub_oracle_call_duration_seconds.
var AllowedOracleStatuses = map[string]bool{
	OracleStatusSuccess:     true,
	OracleStatusError:       true,
	OracleStatusTimeout:     true,
	OracleStatusRateLimited: true,
}

// AllowedOracleProviders bounds the provider attribute.
var AllowedOracleProviders = map[string]bool{
	"openai":            true,
	"google":            true,
	"anthropic":         true,
	"openai_compatible": true,
}

// NormalizeLabel returns value if in allowed, otherwise "other".
func NormalizeLabel(value string, allowed map[string]bool) string {
	if allowed[value] {
		return value
	}

	return "other"
}
