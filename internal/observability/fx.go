package observability

import (
	"github.com/smallbiznis/hightide/internal/observability/logger"
	"github.com/smallbiznis/hightide/internal/observability/metrics"
	"github.com/smallbiznis/hightide/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module wires zap, the OTel tracer/meter providers, the domain counters
// and the Prometheus scheduler series.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:         cfg.ServiceName,
				Environment:         cfg.Environment,
				Version:             cfg.Version,
				Level:               cfg.LogLevel,
				Format:              cfg.LogFormat,
				IncludeCaller:       true,
				IncludeStackOnError: cfg.Debug(),
			}
		},
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.Enabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.OTLPEndpoint,
				ExporterProtocol: cfg.OTLPProtocol,
				SamplingRatio:    cfg.SamplingRatio,
			}
		},
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.Enabled,
				ExporterEndpoint: cfg.OTLPEndpoint,
				ExporterProtocol: cfg.OTLPProtocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.SchedulerWithConfig,
	),
	// Force the tracer provider so otel globals are set before the first span.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
