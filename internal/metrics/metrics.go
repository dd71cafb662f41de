package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	ActiveConnections metric.Int64UpDownCounter
	VaultOps          metric.Int64Counter
	VaultOpDuration   metric.Float64Histogram
	EventsPublished   metric.Int64Counter
}

// Setup builds the meters on a private Prometheus registry and returns the
// handler serving it.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	m := &Metrics{}

	if m.HTTPRequests, err = meter.Int64Counter(
		"lfs_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return nil, nil, err
	}
	if m.HTTPDuration, err = meter.Float64Histogram(
		"lfs_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return nil, nil, err
	}
	if m.CacheHits, err = meter.Int64Counter(
		"lfs_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	); err != nil {
		return nil, nil, err
	}
	if m.CacheMisses, err = meter.Int64Counter(
		"lfs_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	); err != nil {
		return nil, nil, err
	}
	if m.ActiveConnections, err = meter.Int64UpDownCounter(
		"lfs_websocket_connections",
		metric.WithDescription("Number of active WebSocket connections"),
	); err != nil {
		return nil, nil, err
	}
	if m.VaultOps, err = meter.Int64Counter(
		"lfs_vault_operations_total",
		metric.WithDescription("Vault operations by name, outcome and error code"),
	); err != nil {
		return nil, nil, err
	}
	if m.VaultOpDuration, err = meter.Float64Histogram(
		"lfs_vault_operation_duration_seconds",
		metric.WithDescription("Vault operation latency including the store write"),
	); err != nil {
		return nil, nil, err
	}
	if m.EventsPublished, err = meter.Int64Counter(
		"lfs_vault_events_published_total",
		metric.WithDescription("Vault events handed to a sink"),
	); err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// The Record helpers are no-ops on a nil *Metrics so components can run
// without a metrics pipeline in tests.

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)
	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

func (m *Metrics) RecordCacheHit(ctx context.Context, key string) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, key string) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func (m *Metrics) IncrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, 1)
}

func (m *Metrics) DecrementConnections(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveConnections.Add(ctx, -1)
}

// RecordVaultOp satisfies vault.Observer.
func (m *Metrics) RecordVaultOp(ctx context.Context, op, outcome, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.VaultOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
		attribute.String("code", code),
	))
	m.VaultOpDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordEventsPublished(ctx context.Context, sink string, n int) {
	if m == nil {
		return
	}
	m.EventsPublished.Add(ctx, int64(n), metric.WithAttributes(attribute.String("sink", sink)))
}
