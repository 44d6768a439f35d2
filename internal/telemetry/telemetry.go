package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Environment variables that enable export. Each is a full OTLP/HTTP
// endpoint URL, e.g. http://localhost:4318/v1/metrics.
const (
	EnvMetricsURL = "COPYCAT_OTEL_METRICS_URL"
	EnvLogsURL    = "COPYCAT_OTEL_LOGS_URL"
)

// exportInterval is how often metrics are pushed.
const exportInterval = 30 * time.Second

// Provider owns the SDK providers installed by Init.
type Provider struct {
	meter  *sdkmetric.MeterProvider
	logger *sdklog.LoggerProvider
}

// Enabled reports whether any telemetry endpoint is configured.
func Enabled() bool {
	return os.Getenv(EnvMetricsURL) != "" || os.Getenv(EnvLogsURL) != ""
}

// Init installs OTLP/HTTP exporters as the global meter and logger
// providers when the endpoint environment variables are set. It returns
// a nil Provider, and changes nothing, when neither is set.
func Init(ctx context.Context, serviceName, version string) (*Provider, error) {
	metricsURL := os.Getenv(EnvMetricsURL)
	logsURL := os.Getenv(EnvLogsURL)
	if metricsURL == "" && logsURL == "" {
		return nil, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(append(resourceAttrs(),
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)...),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	p := &Provider{}
	if metricsURL != "" {
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(metricsURL))
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		p.meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
				sdkmetric.WithInterval(exportInterval))),
		)
		otel.SetMeterProvider(p.meter)
	}
	if logsURL != "" {
		exp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(logsURL))
		if err != nil {
			p.Shutdown(ctx) //nolint:errcheck // unwinding a partial init
			return nil, fmt.Errorf("logs exporter: %w", err)
		}
		p.logger = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		)
		global.SetLoggerProvider(p.logger)
	}

	// Re-register instruments against the real provider.
	instOnce = sync.Once{}
	initInstruments()
	return p, nil
}

// Shutdown flushes and stops the providers. Safe on a nil Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	if p.logger != nil {
		errs = append(errs, p.logger.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
