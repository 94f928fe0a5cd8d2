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

// Metrics exposes application-level instruments.
type Metrics struct {
	identityFetches     metric.Int64Counter
	guardDecisions      metric.Int64Counter
	impersonationStarts metric.Int64Counter
	impersonationStops  metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
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

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "teamauth"
	}
	meter := provider.Meter(name)

	identityFetches, err := meter.Int64Counter("teamauth_identity_fetches_total")
	if err != nil {
		return nil, err
	}
	guardDecisions, err := meter.Int64Counter("teamauth_guard_decisions_total")
	if err != nil {
		return nil, err
	}
	impersonationStarts, err := meter.Int64Counter("teamauth_impersonation_starts_total")
	if err != nil {
		return nil, err
	}
	impersonationStops, err := meter.Int64Counter("teamauth_impersonation_stops_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("teamauth_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		identityFetches:     identityFetches,
		guardDecisions:      guardDecisions,
		impersonationStarts: impersonationStarts,
		impersonationStops:  impersonationStops,
		rateLimitDenied:     rateLimitDenied,
	}, nil
}

// RecordIdentityFetch counts underlying identity provider fetches, labelled
// by whether they came from cache coalescing or a forced refresh.
func (m *Metrics) RecordIdentityFetch(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.identityFetches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGuardDecision counts guard pipeline outcomes per stage.
func (m *Metrics) RecordGuardDecision(ctx context.Context, stage, decision string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("guard.stage", strings.TrimSpace(stage)),
		attribute.String("guard.decision", strings.TrimSpace(decision)),
	)
	m.guardDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordImpersonationStart counts impersonation start attempts.
func (m *Metrics) RecordImpersonationStart(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.impersonationStarts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordImpersonationStop counts impersonation stop attempts.
func (m *Metrics) RecordImpersonationStop(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.impersonationStops.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied counts rejected impersonation starts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
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
	"source":         {},
	"guard.stage":    {},
	"guard.decision": {},
	"outcome":        {},
	"endpoint":       {},
	"status_code":    {},
	"method":         {},
	"route":          {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}
