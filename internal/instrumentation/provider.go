package instrumentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Provider owns the meter and tracer providers and the Metrics recorder
// built on them. A disabled or nil Provider is safe to use.
type Provider struct {
	config         Config
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *Metrics
	// scraped is set when metrics are pulled through the Prometheus registry.
	scraped bool
}

// NewProvider builds the exporters named in config and installs the
// providers globally.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if !config.Enabled {
		return &Provider{config: config, metrics: &Metrics{}}, nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res, err := newResource(ctx, config)
	if err != nil {
		return nil, err
	}

	reader, err := newMetricReader(ctx, config)
	if err != nil {
		return nil, err
	}
	mp := metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader))

	tp, err := newTracerProvider(ctx, config, res)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(ctx))
	}

	p := &Provider{
		config:         config,
		meterProvider:  mp,
		tracerProvider: tp,
		scraped:        config.Metrics.Exporter == ExporterPrometheus,
	}
	p.metrics, err = NewMetrics(mp.Meter(config.ServiceName), config.Metrics.DetailedLabels)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create metrics recorder: %w", err), p.Shutdown(ctx))
	}

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	return p, nil
}

func newResource(ctx context.Context, config Config) (*resource.Resource, error) {
	instance := config.InstanceID
	if instance == "" {
		instance, _ = os.Hostname()
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.ServiceInstanceID(instance),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// newMetricReader returns a pull reader for prometheus and a periodic push
// reader for the other exporters.
func newMetricReader(ctx context.Context, config Config) (metric.Reader, error) {
	var exporter metric.Exporter
	var err error

	switch config.Metrics.Exporter {
	case ExporterPrometheus, "":
		reader, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		return reader, nil
	case ExporterOTLP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.OTLP.Endpoint)}
		if config.OTLP.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	case ExporterStdout:
		slog.Warn("stdout metrics exporter enabled, use for debugging only", "component", "instrumentation")
		exporter, err = stdoutmetric.New()
	default:
		return nil, fmt.Errorf("unsupported metrics exporter: %s", config.Metrics.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s metrics exporter: %w", config.Metrics.Exporter, err)
	}

	interval := config.Metrics.Interval
	if interval <= 0 {
		interval = DefaultMetricInterval
	}
	return metric.NewPeriodicReader(exporter, metric.WithInterval(interval)), nil
}

// newTracerProvider never samples when tracing is off, so spans started by
// the helpers in tracing.go cost nothing.
func newTracerProvider(ctx context.Context, config Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch config.Tracing.Exporter {
	case ExporterNone, "":
		return sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.NeverSample()),
		), nil
	case ExporterOTLP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLP.Endpoint)}
		if config.OTLP.Insecure {
			slog.Warn("OTLP trace export without TLS", "component", "instrumentation", "endpoint", config.OTLP.Endpoint)
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case ExporterStdout:
		slog.Warn("stdout trace exporter enabled, use for debugging only", "component", "instrumentation")
		exporter, err = stdouttrace.New()
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", config.Tracing.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s trace exporter: %w", config.Tracing.Exporter, err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.Tracing.SamplingRate))),
	), nil
}

// Metrics returns the metrics recorder. A nil provider yields a nil
// recorder, whose methods are no-ops.
func (p *Provider) Metrics() *Metrics {
	if p == nil {
		return nil
	}
	return p.metrics
}

// Config returns the configuration the provider was built from.
func (p *Provider) Config() Config {
	if p == nil {
		return Config{}
	}
	return p.config
}

// Scraped reports whether metrics are exposed through the default
// Prometheus registry and need an HTTP endpoint.
func (p *Provider) Scraped() bool {
	return p.Enabled() && p.scraped
}

// Shutdown flushes pending telemetry.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	var errs []error
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Enabled returns true if instrumentation is enabled.
func (p *Provider) Enabled() bool {
	return p != nil && p.config.Enabled
}
