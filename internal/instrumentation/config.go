package instrumentation

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for OpenTelemetry instrumentation.
// DefaultConfig fills it from the environment using the env tags below.
type Config struct {
	// ServiceName is the name of the service (default: inboxshare)
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"inboxshare"`

	// ServiceVersion is the version of the service
	ServiceVersion string `env:"-"`

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string `env:"OTEL_SERVICE_INSTANCE_ID"`

	// K8sNamespace falls back to POD_NAMESPACE, K8sPodName to HOSTNAME.
	K8sNamespace string `env:"K8S_NAMESPACE"`
	K8sPodName   string `env:"K8S_POD_NAME"`

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool `env:"INSTRUMENTATION_ENABLED" envDefault:"true"`

	// MetricsExporter is one of "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string `env:"METRICS_EXPORTER" envDefault:"prometheus"`

	// TracingExporter is one of "otlp", "stdout", "none" (default: "none")
	TracingExporter string `env:"TRACING_EXPORTER" envDefault:"none"`

	// OTLPEndpoint is the OTLP collector endpoint without protocol prefix,
	// e.g. "localhost:4318".
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// OTLPInsecure sends OTLP over plain HTTP. Development only.
	OTLPInsecure bool `env:"OTEL_EXPORTER_OTLP_INSECURE"`

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"0.1"`

	// PrometheusEndpoint is the path for the Prometheus metrics endpoint (default: "/metrics")
	PrometheusEndpoint string `env:"PROMETHEUS_ENDPOINT" envDefault:"/metrics"`

	// DetailedLabels adds the caller's email domain to tool metrics.
	// Full email addresses are never used as labels.
	DetailedLabels bool `env:"METRICS_DETAILED_LABELS"`

	// AuditLogging configures audit logging behavior.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool `env:"AUDIT_LOGGING_ENABLED" envDefault:"true"`

	// IncludePII controls whether full email addresses appear in audit
	// events. When false (default), hashed identifiers are logged instead.
	IncludePII bool `env:"AUDIT_LOGGING_INCLUDE_PII"`

	// LogLevel sets the slog level for audit log messages (default: INFO).
	LogLevel string `env:"AUDIT_LOGGING_LEVEL" envDefault:"info"`
}

// DefaultConfig returns a Config built from environment variables and their
// defaults. If any variable is malformed the environment is ignored
// entirely and a warning is logged.
func DefaultConfig() Config {
	config, err := LoadConfig()
	if err != nil {
		slog.Warn("invalid instrumentation environment, using defaults",
			"component", "instrumentation",
			"error", err)
		config = defaultsOnly()
	}
	return config
}

// LoadConfig parses the instrumentation settings from the environment.
func LoadConfig() (Config, error) {
	config, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse instrumentation environment: %w", err)
	}
	applyFallbacks(&config, os.Getenv)
	return config, nil
}

func defaultsOnly() Config {
	config, _ := env.ParseAsWithOptions[Config](env.Options{Environment: map[string]string{}})
	applyFallbacks(&config, func(string) string { return "" })
	return config
}

func applyFallbacks(config *Config, getenv func(string) string) {
	config.ServiceVersion = "unknown"
	if config.K8sNamespace == "" {
		config.K8sNamespace = getenv("POD_NAMESPACE")
	}
	if config.K8sPodName == "" {
		config.K8sPodName = getenv("HOSTNAME")
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Validate sampling rate is within bounds
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	// Validate metrics exporter
	validMetricsExporters := map[string]bool{ExporterPrometheus: true, ExporterOTLP: true, ExporterStdout: true}
	if c.MetricsExporter != "" && !validMetricsExporters[c.MetricsExporter] {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	// Validate tracing exporter
	validTracingExporters := map[string]bool{ExporterOTLP: true, ExporterStdout: true, ExporterNone: true}
	if c.TracingExporter != "" && !validTracingExporters[c.TracingExporter] {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	// OTLP endpoint required when using OTLP exporters
	if c.TracingExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
	}
	if c.MetricsExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
	}

	return nil
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// OAuth result values
	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"

	// Access decision results
	AccessResultGrant = "grant"
	AccessResultDeny  = "deny"

	// Admin login results
	AdminLoginSuccess  = "success"
	AdminLoginFailure  = "failure"
	AdminLoginDisabled = "disabled"

	// Google service names
	ServiceGmail    = "gmail"
	ServiceUserinfo = "userinfo"
	ServiceOAuth    = "oauth"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// Metric recording intervals
	DefaultMetricInterval = 10 * time.Second
)
