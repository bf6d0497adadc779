// Package metrics exports a running pool's status as OpenTelemetry
// gauges, sampled on an interval and logged through internal/log. The
// otel/sdk/metric instrument API is real; only the export side is
// simplified to logging, since no OTLP metrics exporter is available to
// this module (only otlptracegrpc, a trace exporter, is).
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/zjrosen/agentpool/internal/log"
	"github.com/zjrosen/agentpool/pool"
)

// Config configures the metrics subsystem.
type Config struct {
	// Enabled controls whether metrics are recorded at all. When false,
	// NewProvider returns a no-op Provider with zero overhead.
	Enabled bool

	// ServiceName identifies this process in exported metrics.
	ServiceName string

	// CollectInterval controls how often the pool is sampled.
	CollectInterval time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		ServiceName:     "agentpool",
		CollectInterval: 5 * time.Second,
	}
}

// Provider periodically samples a pool.Pool's Status and records it as
// OpenTelemetry gauges: idle/overflow/busy worker counts and a state
// label. Safe to use even when disabled (every method becomes a no-op).
type Provider struct {
	reader  *metric.ManualReader
	mp      *metric.MeterProvider
	enabled bool
	stop    chan struct{}

	idleGauge     otelmetric.Int64ObservableGauge
	overflowGauge otelmetric.Int64ObservableGauge
	busyGauge     otelmetric.Int64ObservableGauge
}

// NewProvider configures OpenTelemetry metrics for cfg and begins
// sampling p's Status every cfg.CollectInterval.
func NewProvider(cfg Config, p *pool.Pool) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{enabled: false}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "agentpool"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	meter := mp.Meter(serviceName)

	prov := &Provider{reader: reader, mp: mp, enabled: true, stop: make(chan struct{})}

	var err error
	prov.idleGauge, err = meter.Int64ObservableGauge("agentpool.workers.idle")
	if err != nil {
		return nil, fmt.Errorf("create idle gauge: %w", err)
	}
	prov.overflowGauge, err = meter.Int64ObservableGauge("agentpool.workers.overflow")
	if err != nil {
		return nil, fmt.Errorf("create overflow gauge: %w", err)
	}
	prov.busyGauge, err = meter.Int64ObservableGauge("agentpool.workers.busy")
	if err != nil {
		return nil, fmt.Errorf("create busy gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o otelmetric.Observer) error {
		st := p.Status()
		o.ObserveInt64(prov.idleGauge, int64(st.Idle), otelmetric.WithAttributes(attribute.String("state", string(st.State))))
		o.ObserveInt64(prov.overflowGauge, int64(st.Overflow))
		o.ObserveInt64(prov.busyGauge, int64(st.Busy))
		return nil
	}, prov.idleGauge, prov.overflowGauge, prov.busyGauge)
	if err != nil {
		return nil, fmt.Errorf("register metrics callback: %w", err)
	}

	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = DefaultConfig().CollectInterval
	}
	go prov.collectLoop(interval)

	return prov, nil
}

func (p *Provider) collectLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			var rm metricdata.ResourceMetrics
			if err := p.reader.Collect(context.Background(), &rm); err != nil {
				log.ErrorErr(log.CatMetrics, "metrics collect failed", err)
				continue
			}
			for _, sm := range rm.ScopeMetrics {
				for _, m := range sm.Metrics {
					logMetric(m)
				}
			}
		case <-p.stop:
			return
		}
	}
}

func logMetric(m metricdata.Metrics) {
	switch data := m.Data.(type) {
	case metricdata.Gauge[int64]:
		for _, dp := range data.DataPoints {
			fields := []any{"value", dp.Value}
			for _, attr := range dp.Attributes.ToSlice() {
				fields = append(fields, string(attr.Key), attr.Value.AsInterface())
			}
			log.Info(log.CatMetrics, m.Name, fields...)
		}
	}
}

// Shutdown flushes and stops metrics export. Safe to call on a disabled
// Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	close(p.stop)
	return p.mp.Shutdown(ctx)
}
