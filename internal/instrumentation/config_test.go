package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("INSTRUMENTATION_ENABLED", "")
	t.Setenv("METRICS_EXPORTER", "")
	t.Setenv("TRACING_EXPORTER", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "")

	config := DefaultConfig()

	assert.Equal(t, "meetwhen", config.ServiceName)
	assert.True(t, config.Enabled)
	assert.Equal(t, ExporterPrometheus, config.MetricsExporter)
	assert.Equal(t, ExporterNone, config.TracingExporter)
	assert.Equal(t, 0.1, config.TraceSamplingRate)
	assert.True(t, config.AuditLogging.Enabled)
	assert.False(t, config.AuditLogging.IncludePII)
	assert.NoError(t, config.Validate())
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "test-service")
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("TRACING_EXPORTER", "stdout")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.5")
	t.Setenv("METRICS_DETAILED_LABELS", "not-a-bool")

	config := DefaultConfig()

	assert.Equal(t, "test-service", config.ServiceName)
	assert.False(t, config.Enabled)
	assert.Equal(t, ExporterStdout, config.MetricsExporter)
	assert.Equal(t, ExporterStdout, config.TracingExporter)
	assert.Equal(t, 0.5, config.TraceSamplingRate)
	assert.False(t, config.DetailedLabels, "unparseable values fall back to the default")
}

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{
		"POD_NAMESPACE":               "scheduling",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "collector:4318",
		"OTEL_EXPORTER_OTLP_INSECURE": "true",
		"TRACING_EXPORTER":            ExporterOTLP,
		"AUDIT_LOGGING_INCLUDE_PII":   "1",
		"OTEL_TRACES_SAMPLER_ARG":     "half",
	}
	config := ConfigFromEnv(func(key string) string { return env[key] })

	assert.Equal(t, "scheduling", config.K8sNamespace, "POD_NAMESPACE backs K8S_NAMESPACE")
	assert.Equal(t, "collector:4318", config.OTLPEndpoint)
	assert.True(t, config.OTLPInsecure)
	assert.Equal(t, ExporterOTLP, config.TracingExporter)
	assert.True(t, config.AuditLogging.IncludePII)
	assert.Equal(t, 0.1, config.TraceSamplingRate)
	assert.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "empty", config: Config{}},
		{name: "prometheus", config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone, TraceSamplingRate: 1}},
		{name: "otlp with endpoint", config: Config{MetricsExporter: ExporterOTLP, TracingExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"}},
		{name: "sampling below zero", config: Config{TraceSamplingRate: -0.1}, wantErr: true},
		{name: "sampling above one", config: Config{TraceSamplingRate: 1.5}, wantErr: true},
		{name: "bad metrics exporter", config: Config{MetricsExporter: "jaeger"}, wantErr: true},
		{name: "bad tracing exporter", config: Config{TracingExporter: "prometheus"}, wantErr: true},
		{name: "otlp metrics without endpoint", config: Config{MetricsExporter: ExporterOTLP}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIdentityDomain(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"test@subdomain.example.com", "subdomain.example.com"},
		{"invalid", "unknown"},
		{"", "unknown"},
		{"@", "unknown"},
		{"user@", "unknown"},
		{"@domain.com", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.expected, IdentityDomain(tt.email))
		})
	}
}
