package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	ReceiptsResolved     prometheus.Counter
	ReceiptsAcknowledged prometheus.Counter
	ResolveFailures      *prometheus.CounterVec
	ResolveLatencySec    prometheus.Histogram

	AllocationsGenerated *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	Exports              prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	resolved := prometheus.NewCounter(prometheus.CounterOpts{Name: "receiptsplit_receipts_resolved_total"})
	acknowledged := prometheus.NewCounter(prometheus.CounterOpts{Name: "receiptsplit_receipts_acknowledged_total"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "receiptsplit_resolve_failures_total"}, []string{"category"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "receiptsplit_resolve_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})

	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "receiptsplit_allocations_generated_total"}, []string{"mode"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{Name: "receiptsplit_active_sessions"})
	exports := prometheus.NewCounter(prometheus.CounterOpts{Name: "receiptsplit_exports_total"})

	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "receiptsplit_resolve_cache_hits_total"})
	misses := prometheus.NewCounter(prometheus.CounterOpts{Name: "receiptsplit_resolve_cache_misses_total"})

	r.MustRegister(
		resolved, acknowledged, failures, latency,
		allocations, active, exports,
		hits, misses,
		collectors.NewGoCollector(),
	)
	return &Registry{
		reg:                  r,
		ReceiptsResolved:     resolved,
		ReceiptsAcknowledged: acknowledged,
		ResolveFailures:      failures,
		ResolveLatencySec:    latency,
		AllocationsGenerated: allocations,
		ActiveSessions:       active,
		Exports:              exports,
		CacheHits:            hits,
		CacheMisses:          misses,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// CacheHit and CacheMiss let the registry observe the resolution cache.
func (r *Registry) CacheHit()  { r.CacheHits.Inc() }
func (r *Registry) CacheMiss() { r.CacheMisses.Inc() }
