package instrumentation

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName defaults to meetwhen.
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname when empty.
	ServiceInstanceID string
	K8sNamespace      string
	K8sPodName        string

	// Enabled turns metrics and tracing on. INSTRUMENTATION_ENABLED=false disables both.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp, stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout, none.
	TracingExporter string

	// OTLPEndpoint is host:port without scheme, e.g. localhost:4318.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for OTLP export. Development only.
	OTLPInsecure bool

	// TraceSamplingRate is between 0.0 and 1.0.
	TraceSamplingRate float64

	// PrometheusEndpoint is the path served by the metrics server.
	PrometheusEndpoint string

	// DetailedLabels adds the identity's email domain to fetch metrics.
	// Full identities never become label values.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig

	// Logger receives exporter warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// AuditLoggingConfig controls the credential audit trail.
type AuditLoggingConfig struct {
	Enabled bool

	// IncludePII logs full identities instead of hashes.
	IncludePII bool
}

// DefaultConfig returns defaults overridden by the process environment.
func DefaultConfig() Config {
	return ConfigFromEnv(os.Getenv)
}

// ConfigFromEnv returns defaults overridden by the variables getenv knows.
// Unparseable values keep the default.
func ConfigFromEnv(getenv func(string) string) Config {
	env := envReader(getenv)
	return Config{
		ServiceName:        env.str("OTEL_SERVICE_NAME", "meetwhen"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  env.str("OTEL_SERVICE_INSTANCE_ID", ""),
		K8sNamespace:       env.str("K8S_NAMESPACE", env.str("POD_NAMESPACE", "")),
		K8sPodName:         env.str("K8S_POD_NAME", env.str("HOSTNAME", "")),
		Enabled:            env.boolean("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:    env.str("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:    env.str("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:       env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:       env.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:  env.float("OTEL_TRACES_SAMPLER_ARG", 0.1),
		PrometheusEndpoint: env.str("PROMETHEUS_ENDPOINT", "/metrics"),
		DetailedLabels:     env.boolean("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    env.boolean("AUDIT_LOGGING_ENABLED", true),
			IncludePII: env.boolean("AUDIT_LOGGING_INCLUDE_PII", false),
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" && (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}

	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

type envReader func(string) string

func (e envReader) str(key, def string) string {
	if v := e(key); v != "" {
		return v
	}
	return def
}

func (e envReader) boolean(key string, def bool) bool {
	b, err := strconv.ParseBool(e(key))
	if err != nil {
		return def
	}
	return b
}

func (e envReader) float(key string, def float64) float64 {
	f, err := strconv.ParseFloat(e(key), 64)
	if err != nil {
		return def
	}
	return f
}
