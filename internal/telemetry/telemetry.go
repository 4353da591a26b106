// Package telemetry exports engine metrics over OTLP. Disabled
// configuration yields a noop meter so call sites never branch.
package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/tabguard-ai/tabguard/internal/logredact"
)

// Config controls telemetry setup.
type Config struct {
	Enabled  bool
	Endpoint string
	Protocol string // grpc | http
	Service  string
	Version  string
}

// Provider owns the meter and the engine's instruments.
type Provider struct {
	Enabled bool
	meter   metric.Meter

	classifications metric.Int64Counter
	piiDetections   metric.Int64Counter
	bucketFlushes   metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	escalations     metric.Int64Counter

	shutdownMeterProvider func(context.Context) error
}

// NewProvider configures the OTLP exporter and meter provider. When
// disabled, every instrument is a noop.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled {
		p := &Provider{Enabled: false, meter: noop.NewMeterProvider().Meter("")}
		p.initInstruments()
		return p, nil
	}

	logredact.Logf("telemetry enabled (OpenTelemetry OTLP %s) endpoint=%s; without a listening collector, periodic upload warnings are expected",
		strings.ToLower(cfg.Protocol), cfg.Endpoint)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	var reader sdkmetric.Reader
	switch strings.ToLower(cfg.Protocol) {
	case "", "grpc":
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.Endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	case "http":
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, err
		}
		reader = sdkmetric.NewPeriodicReader(exp)
	default:
		p := &Provider{Enabled: false, meter: noop.NewMeterProvider().Meter("")}
		p.initInstruments()
		return p, nil
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	p := &Provider{
		Enabled:               true,
		meter:                 mp.Meter("tabguard"),
		shutdownMeterProvider: mp.Shutdown,
	}
	p.initInstruments()
	return p, nil
}

func (p *Provider) initInstruments() {
	if p == nil {
		return
	}
	// Instrument creation errors leave a nil instrument; telemetry is
	// best-effort.
	p.classifications, _ = p.meter.Int64Counter("tabguard_classifications_total")
	p.piiDetections, _ = p.meter.Int64Counter("tabguard_pii_detections_total")
	p.bucketFlushes, _ = p.meter.Int64Counter("tabguard_bucket_flushes_total")
	p.cacheHits, _ = p.meter.Int64Counter("tabguard_explain_cache_hits_total")
	p.cacheMisses, _ = p.meter.Int64Counter("tabguard_explain_cache_misses_total")
	p.escalations, _ = p.meter.Int64Counter("tabguard_escalations_total")
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return noop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Shutdown flushes the meter provider.
func (p *Provider) Shutdown(ctx context.Context) {
	if p == nil {
		return
	}
	if p.shutdownMeterProvider != nil {
		_ = p.shutdownMeterProvider(ctx)
	}
}

// RecordClassification counts one classification by outcome and risk.
// Extra labels pass through the safe-attribute filter.
func (p *Provider) RecordClassification(outcome, riskLabel string, extra map[string]any) {
	if p == nil || p.classifications == nil {
		return
	}
	labels := append([]attribute.KeyValue{
		attribute.String("tabguard.classification", outcome),
		attribute.String("tabguard.risk", strings.ToLower(riskLabel)),
	}, SafeAttributes(extra)...)
	p.classifications.Add(context.Background(), 1, metric.WithAttributes(labels...))
}

// RecordPIIDetections counts detections for one type. Only the type
// name is labeled, never values.
func (p *Provider) RecordPIIDetections(piiType string, n int) {
	if p == nil || p.piiDetections == nil || n <= 0 {
		return
	}
	p.piiDetections.Add(context.Background(), int64(n),
		metric.WithAttributes(attribute.String("tabguard.pii_type", piiType)))
}

// RecordBucketFlush counts settled bucket snapshot writes.
func (p *Provider) RecordBucketFlush(n int) {
	if p == nil || p.bucketFlushes == nil || n <= 0 {
		return
	}
	p.bucketFlushes.Add(context.Background(), int64(n))
}

// RecordCacheLookup counts an explanation cache hit or miss.
func (p *Provider) RecordCacheLookup(hit bool) {
	if p == nil {
		return
	}
	if hit {
		if p.cacheHits != nil {
			p.cacheHits.Add(context.Background(), 1)
		}
		return
	}
	if p.cacheMisses != nil {
		p.cacheMisses.Add(context.Background(), 1)
	}
}

// RecordEscalation counts one emitted escalation by risk level.
func (p *Provider) RecordEscalation(level string) {
	if p == nil || p.escalations == nil {
		return
	}
	p.escalations.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("tabguard.risk", level)))
}
