package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls to shard nodes, the response cache and relay searches.
type UpstreamMetrics struct {
	calls        *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	searchProbes *prometheus.CounterVec
}

var (
	upstreamOnce     sync.Once
	upstreamRegistry *UpstreamMetrics
)

func Upstream() *UpstreamMetrics {
	upstreamOnce.Do(func() {
		upstreamRegistry = &UpstreamMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "shardgate_upstream_calls_total",
				Help: "Count of shard node calls by shard, method and outcome.",
			}, []string{"shard", "method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "shardgate_upstream_call_duration_seconds",
				Help:    "Latency of shard node calls.",
				Buckets: prometheus.DefBuckets,
			}, []string{"shard", "method"}),
			cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "shardgate_upstream_cache_lookups_total",
				Help: "Response cache lookups by method and result.",
			}, []string{"method", "result"}),
			searchProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "shardgate_relay_search_probes_total",
				Help: "Blocks inspected while searching for relay transactions.",
			}, []string{"shard"}),
		}
		prometheus.MustRegister(
			upstreamRegistry.calls,
			upstreamRegistry.latency,
			upstreamRegistry.cacheLookups,
			upstreamRegistry.searchProbes,
		)
	})
	return upstreamRegistry
}

func (m *UpstreamMetrics) ObserveCall(shard uint16, method string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	label := strconv.FormatUint(uint64(shard), 10)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(label, method, outcome).Inc()
	m.latency.WithLabelValues(label, method).Observe(duration.Seconds())
}

func (m *UpstreamMetrics) RecordCacheLookup(method string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(method, result).Inc()
}

func (m *UpstreamMetrics) RecordSearchProbe(shard uint16, _ uint64) {
	if m == nil {
		return
	}
	m.searchProbes.WithLabelValues(strconv.FormatUint(uint64(shard), 10)).Inc()
}

// CacheLookups exposes the cache counter for tests.
func (m *UpstreamMetrics) CacheLookups() *prometheus.CounterVec {
	return m.cacheLookups
}
