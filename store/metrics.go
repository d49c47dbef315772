package store

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace is the leading part of all published metrics.
const namespace = "chunkstore"

const storeSubsystem = "store" // sub-system associated with metrics for the store itself.
const gcSubsystem = "gc"       // sub-system associated with metrics for garbage collection.

// storeMetrics are a set of metrics concerned with tracking the resident
// data and the mutation traffic of a store.
type storeMetrics struct {
	labels prometheus.Labels // Read Only

	Chunks       *prometheus.GaugeVec
	StaticChunks *prometheus.GaugeVec
	Rows         *prometheus.GaugeVec
	Bytes        *prometheus.GaugeVec

	Events             *prometheus.CounterVec
	SubscriberFailures *prometheus.CounterVec

	// Inserts includes a `"status" = {ok, error}` label.
	Inserts *prometheus.CounterVec
}

// newStoreMetrics initialises the prometheus metrics for the store.
func newStoreMetrics(labels prometheus.Labels) *storeMetrics {
	var names []string
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	insertNames := append(names, "status")
	sort.Strings(insertNames)

	return &storeMetrics{
		labels: labels,
		Chunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "chunks",
			Help:      "Number of chunks resident in the store.",
		}, names),
		StaticChunks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "static_chunks",
			Help:      "Number of resident chunks holding static data.",
		}, names),
		Rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "rows",
			Help:      "Number of rows resident in the store.",
		}, names),
		Bytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "bytes",
			Help:      "Logical bytes retained by resident chunks.",
		}, names),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "events",
			Help:      "Number of store events emitted.",
		}, names),
		SubscriberFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "subscriber_failures",
			Help:      "Number of subscriber callbacks that returned an error or panicked.",
		}, names),
		Inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: storeSubsystem,
			Name:      "inserts",
			Help:      "Number of chunk insertion attempts.",
		}, insertNames),
	}
}

// Labels returns a copy of labels for use with store metrics.
func (m *storeMetrics) Labels() prometheus.Labels {
	l := make(map[string]string, len(m.labels))
	for k, v := range m.labels {
		l[k] = v
	}
	return l
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *storeMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Chunks,
		m.StaticChunks,
		m.Rows,
		m.Bytes,
		m.Events,
		m.SubscriberFailures,
		m.Inserts,
	}
}

// gcMetrics are a set of metrics concerned with tracking garbage collection
// runs.
type gcMetrics struct {
	labels prometheus.Labels // Read Only

	ReclaimedBytes *prometheus.CounterVec
	DroppedRows    *prometheus.CounterVec

	// Checks includes a `"status" = {ok, error}` label.
	Checks        *prometheus.CounterVec
	CheckDuration *prometheus.HistogramVec
}

// newGCMetrics initialises the prometheus metrics for garbage collection.
func newGCMetrics(labels prometheus.Labels) *gcMetrics {
	var names []string
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	checkNames := append(names, "status")
	sort.Strings(checkNames)

	return &gcMetrics{
		labels: labels,
		ReclaimedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: gcSubsystem,
			Name:      "reclaimed_bytes",
			Help:      "Number of bytes released by garbage collection.",
		}, names),
		DroppedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: gcSubsystem,
			Name:      "dropped_rows",
			Help:      "Number of rows removed by garbage collection.",
		}, names),
		Checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: gcSubsystem,
			Name:      "checks",
			Help:      "Number of memory-limit checks run.",
		}, checkNames),
		CheckDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: gcSubsystem,
			Name:      "check_duration_seconds",
			Help:      "Time taken by memory-limit checks.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, names),
	}
}

// Labels returns a copy of labels for use with gc metrics.
func (m *gcMetrics) Labels() prometheus.Labels {
	l := make(map[string]string, len(m.labels))
	for k, v := range m.labels {
		l[k] = v
	}
	return l
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *gcMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReclaimedBytes,
		m.DroppedRows,
		m.Checks,
		m.CheckDuration,
	}
}
