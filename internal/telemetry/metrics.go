package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/tenantgate"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Resolution metrics
	ResolutionsTotal metric.Int64Counter
	LookupDuration   metric.Float64Histogram

	// Cache metrics
	CacheHitsTotal   metric.Int64Counter
	CacheMissesTotal metric.Int64Counter

	// Revocation metrics
	RevocationsEvictedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments bind to the global meter provider, so InitTelemetry should run first
// for them to be exported.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ResolutionsTotal, _ = meter.Int64Counter(
		"tenantgate.auth.resolutions.total",
		metric.WithDescription("Total number of token resolutions by outcome"),
		metric.WithUnit("{resolution}"),
	)

	m.LookupDuration, _ = meter.Float64Histogram(
		"tenantgate.auth.lookup.duration",
		metric.WithDescription("Duration of token resolution including datastore lookups"),
		metric.WithUnit("ms"),
	)

	m.CacheHitsTotal, _ = meter.Int64Counter(
		"tenantgate.auth.cache.hits.total",
		metric.WithDescription("Total number of tenant cache hits"),
		metric.WithUnit("{hit}"),
	)

	m.CacheMissesTotal, _ = meter.Int64Counter(
		"tenantgate.auth.cache.misses.total",
		metric.WithDescription("Total number of tenant cache misses"),
		metric.WithUnit("{miss}"),
	)

	m.RevocationsEvictedTotal, _ = meter.Int64Counter(
		"tenantgate.auth.revocations.evicted.total",
		metric.WithDescription("Total number of cache entries evicted for deactivated keys"),
		metric.WithUnit("{entry}"),
	)

	return m
}
