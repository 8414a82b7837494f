package observability

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Enabled           bool
	TracesEnabled     bool
	MetricsEnabled    bool
	ServiceName       string
	ServiceVersion    string
	Environment       string
	OTLPEndpoint      string
	TraceSamplingRate float64
}

// ResolveConfig builds the observability config from QUERY_ENGINE_OTEL_*
// environment variables. Export is off unless QUERY_ENGINE_OTEL_ENABLED is set.
func ResolveConfig(serviceVersion string) Config {
	cfg := Config{
		Enabled:           false,
		TracesEnabled:     true,
		MetricsEnabled:    true,
		ServiceName:       "query-engine",
		ServiceVersion:    serviceVersion,
		Environment:       "development",
		OTLPEndpoint:      "localhost:4317",
		TraceSamplingRate: 1.0,
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}

	overrideBool("QUERY_ENGINE_OTEL_ENABLED", &cfg.Enabled)
	overrideBool("QUERY_ENGINE_OTEL_TRACES_ENABLED", &cfg.TracesEnabled)
	overrideBool("QUERY_ENGINE_OTEL_METRICS_ENABLED", &cfg.MetricsEnabled)
	overrideString("QUERY_ENGINE_OTEL_SERVICE_NAME", &cfg.ServiceName)
	overrideString("QUERY_ENGINE_OTEL_ENVIRONMENT", &cfg.Environment)
	overrideString("QUERY_ENGINE_OTEL_ENDPOINT", &cfg.OTLPEndpoint)
	overrideFloat("QUERY_ENGINE_OTEL_TRACE_SAMPLING_RATIO", &cfg.TraceSamplingRate)

	cfg.TraceSamplingRate = min(max(cfg.TraceSamplingRate, 0), 1)
	cfg.OTLPEndpoint = strings.TrimPrefix(strings.TrimPrefix(cfg.OTLPEndpoint, "http://"), "https://")

	return cfg
}

func overrideString(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func overrideBool(name string, target *bool) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	if parsed, err := strconv.ParseBool(value); err == nil {
		*target = parsed
	}
}

func overrideFloat(name string, target *float64) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	if parsed, err := strconv.ParseFloat(value, 64); err == nil {
		*target = parsed
	}
}
