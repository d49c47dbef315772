package querycache

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace is the leading part of all published metrics.
const namespace = "chunkstore"

const cacheSubsystem = "query_cache" // sub-system associated with metrics for the query cache.

// cacheMetrics are a set of metrics concerned with tracking cache
// effectiveness.
type cacheMetrics struct {
	labels prometheus.Labels // Read Only

	// Hits and Misses include a `"layer" = {latest_at, range}` label.
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
}

// newCacheMetrics initialises the prometheus metrics for the cache.
func newCacheMetrics(labels prometheus.Labels) *cacheMetrics {
	var names []string
	for k := range labels {
		names = append(names, k)
	}
	names = append(names, "layer")
	sort.Strings(names)

	return &cacheMetrics{
		labels: labels,
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: cacheSubsystem,
			Name:      "hits",
			Help:      "Number of lookups served from memoized results.",
		}, names),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: cacheSubsystem,
			Name:      "misses",
			Help:      "Number of lookups resolved against the store.",
		}, names),
	}
}

// Labels returns a copy of labels for use with cache metrics.
func (m *cacheMetrics) Labels() prometheus.Labels {
	l := make(map[string]string, len(m.labels))
	for k, v := range m.labels {
		l[k] = v
	}
	return l
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *cacheMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Hits,
		m.Misses,
	}
}
