package instrumentation

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Exporter names.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// Defaults applied by DefaultConfig.
const (
	DefaultServiceName    = "inboxbuckets"
	DefaultMetricsPath    = "/metrics"
	DefaultMetricInterval = 10 * time.Second
	DefaultSamplingRate   = 0.1
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// InstanceID defaults to the hostname.
	InstanceID string

	// Enabled false yields a provider whose recorders do nothing.
	Enabled bool

	Metrics MetricsConfig
	Tracing TracingConfig
	OTLP    OTLPConfig

	AuditLogging AuditLoggingConfig
}

// MetricsConfig selects how metrics leave the process.
type MetricsConfig struct {
	// Exporter is "prometheus" (scraped from Path), "otlp" or "stdout".
	Exporter string
	Path     string
	// Interval is the push interval of the otlp and stdout exporters.
	Interval time.Duration
	// DetailedLabels adds per-user labels. Keep it off in production.
	DetailedLabels bool
}

// TracingConfig selects the span exporter and sampling.
type TracingConfig struct {
	// Exporter is "otlp", "stdout" or "none".
	Exporter     string
	SamplingRate float64
}

// OTLPConfig is shared by the otlp metrics and trace exporters.
type OTLPConfig struct {
	// Endpoint is host:port without a scheme, e.g. "localhost:4318".
	Endpoint string
	// Insecure disables TLS. Spans carry tool names and message ids.
	Insecure bool
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	Enabled bool
	// IncludePII logs raw user ids instead of their anonymized form.
	IncludePII bool
}

// DefaultConfig returns the configuration used when no environment
// overrides are present.
func DefaultConfig() Config {
	return Config{
		ServiceName:    DefaultServiceName,
		ServiceVersion: "unknown",
		Enabled:        true,
		Metrics: MetricsConfig{
			Exporter: ExporterPrometheus,
			Path:     DefaultMetricsPath,
			Interval: DefaultMetricInterval,
		},
		Tracing: TracingConfig{
			Exporter:     ExporterNone,
			SamplingRate: DefaultSamplingRate,
		},
		AuditLogging: AuditLoggingConfig{Enabled: true},
	}
}

// ConfigFromEnv applies environment overrides to DefaultConfig. lookup is
// usually os.LookupEnv. Malformed values are reported together and the
// returned config is validated.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	env := envReader{lookup: lookup}

	env.str("OTEL_SERVICE_NAME", &cfg.ServiceName)
	env.str("OTEL_SERVICE_INSTANCE_ID", &cfg.InstanceID)
	env.boolean("INSTRUMENTATION_ENABLED", &cfg.Enabled)

	env.str("METRICS_EXPORTER", &cfg.Metrics.Exporter)
	env.str("PROMETHEUS_ENDPOINT", &cfg.Metrics.Path)
	env.millis("OTEL_METRIC_EXPORT_INTERVAL", &cfg.Metrics.Interval)
	env.boolean("METRICS_DETAILED_LABELS", &cfg.Metrics.DetailedLabels)

	env.str("TRACING_EXPORTER", &cfg.Tracing.Exporter)
	env.float("OTEL_TRACES_SAMPLER_ARG", &cfg.Tracing.SamplingRate)

	env.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLP.Endpoint)
	env.boolean("OTEL_EXPORTER_OTLP_INSECURE", &cfg.OTLP.Insecure)

	env.boolean("AUDIT_LOGGING_ENABLED", &cfg.AuditLogging.Enabled)
	env.boolean("AUDIT_LOGGING_INCLUDE_PII", &cfg.AuditLogging.IncludePII)

	if err := errors.Join(env.errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ConfigFromOSEnv is ConfigFromEnv over the process environment.
func ConfigFromOSEnv() (Config, error) {
	return ConfigFromEnv(os.LookupEnv)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.Tracing.SamplingRate))
	}

	switch c.Metrics.Exporter {
	case "", ExporterPrometheus, ExporterStdout:
	case ExporterOTLP:
		if c.OTLP.Endpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP metrics exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.Metrics.Exporter))
	}

	switch c.Tracing.Exporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if c.OTLP.Endpoint == "" {
			errs = append(errs, errors.New("OTLP endpoint is required when using OTLP tracing exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.Tracing.Exporter))
	}

	if c.Metrics.Interval < 0 {
		errs = append(errs, fmt.Errorf("metric export interval must not be negative, got %s", c.Metrics.Interval))
	}

	return errors.Join(errs...)
}

// envReader collects parse errors while applying overrides; unset and empty
// variables leave the default untouched.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) value(key string) (string, bool) {
	v, ok := r.lookup(key)
	return v, ok && v != ""
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.value(key); ok {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return
	}
	*dst = parsed
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return
	}
	*dst = parsed
}

// millis reads an integer count of milliseconds, the unit OTEL_* intervals use.
func (r *envReader) millis(key string, dst *time.Duration) {
	v, ok := r.value(key)
	if !ok {
		return
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid milliseconds %q", key, v))
		return
	}
	*dst = time.Duration(ms) * time.Millisecond
}
