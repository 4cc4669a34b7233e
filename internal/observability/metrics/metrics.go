package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes domain counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	clicks          metric.Int64Counter
	leads           metric.Int64Counter
	webhookEvents   metric.Int64Counter
	commissions     metric.Int64Counter
	commissionCents metric.Int64Counter
	payouts         metric.Int64Counter
	notifications   metric.Int64Counter
	rateLimitDenied metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		},
	})

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.clicks, "hightide_clicks_total"},
		{&m.leads, "hightide_leads_total"},
		{&m.webhookEvents, "hightide_webhook_events_total"},
		{&m.commissions, "hightide_commissions_total"},
		{&m.commissionCents, "hightide_commission_amount_cents_total"},
		{&m.payouts, "hightide_payouts_total"},
		{&m.notifications, "hightide_notifications_total"},
		{&m.rateLimitDenied, "hightide_rate_limit_denied_total"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}

// RecordClick counts tracked clicks; source is "affiliate" or "campaign".
func (m *Metrics) RecordClick(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.clicks.Add(ctx, 1, withAttrs(attribute.String("source", source)))
}

func (m *Metrics) RecordLead(ctx context.Context, source string, existing bool) {
	if m == nil {
		return
	}
	m.leads.Add(ctx, 1, withAttrs(
		attribute.String("source", source),
		attribute.Bool("existing", existing),
	))
}

func (m *Metrics) RecordWebhookEvent(ctx context.Context, eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.Add(ctx, 1, withAttrs(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordCommission(ctx context.Context, tierType string, amountCents int64) {
	if m == nil {
		return
	}
	opt := withAttrs(attribute.String("tier_type", tierType))
	m.commissions.Add(ctx, 1, opt)
	m.commissionCents.Add(ctx, amountCents, opt)
}

func (m *Metrics) RecordPayoutTransition(ctx context.Context, status string, count int64) {
	if m == nil || count == 0 {
		return
	}
	m.payouts.Add(ctx, count, withAttrs(attribute.String("status", status)))
}

func (m *Metrics) RecordNotification(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, withAttrs(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, withAttrs(attribute.String("endpoint", endpoint)))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"source":      {},
	"existing":    {},
	"event_type":  {},
	"outcome":     {},
	"tier_type":   {},
	"status":      {},
	"kind":        {},
}

// FilterAttributes strips labels outside the allow list to keep cardinality bounded.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

func withAttrs(attrs ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return "hightide"
}
