package observability

import (
	"os"
	"strconv"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Standard OTel sampler variables. They stay out of config.Config because the SDK owns their meaning.
const (
	envTracesSampler    = "OTEL_TRACES_SAMPLER"
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
)

// defaultTraceIDRatio applies when a ratio sampler has no usable argument.
const defaultTraceIDRatio = 1.0

func newSampler() sdktrace.Sampler {
	return samplerFor(os.Getenv(envTracesSampler), os.Getenv(envTracesSamplerArg))
}

// samplerFor maps an OTEL_TRACES_SAMPLER value to a sampler. The parentbased_ variants wrap the
// root sampler so a sampled upstream request keeps its oracle spans. Empty or unknown names fall
// back to parentbased_always_on, the SDK default.
func samplerFor(name, arg string) sdktrace.Sampler {
	switch name {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(parseTraceIDRatio(arg))
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(parseTraceIDRatio(arg)))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

func parseTraceIDRatio(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return defaultTraceIDRatio
	}

	return f
}
