package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	addDuration    prometheus.Histogram
	searchDuration prometheus.Histogram
	searchResults  prometheus.Histogram
	evictDuration  prometheus.Histogram

	memoryEntriesTotal prometheus.Gauge
	deletesTotal       *prometheus.CounterVec
	degradedTotal      *prometheus.CounterVec
	embeddingFailures  prometheus.Counter
	embeddingCacheHits *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			addDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_add_duration_seconds",
					Help:    "Memory insert duration in seconds, embedding included.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Hybrid search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			searchResults: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_results",
					Help:    "Number of results returned per search.",
					Buckets: []float64{0, 1, 2, 4, 8, 12, 16, 24, 32},
				},
			),
			evictDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_evict_duration_seconds",
					Help:    "Expired-row eviction sweep duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryEntriesTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "memory_entries_total",
					Help: "Total memory rows currently stored.",
				},
			),
			deletesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_deletes_total",
					Help: "Total delete operations by outcome.",
				},
				[]string{"outcome"},
			),
			degradedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_search_degraded_total",
					Help: "Searches where a retrieval path contributed zero rows due to failure, by path.",
				},
				[]string{"path"},
			),
			embeddingFailures: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_embedding_failures_total",
					Help: "Total embedding provider failures.",
				},
			),
			embeddingCacheHits: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_embedding_cache_total",
					Help: "Embedding cache lookups by outcome.",
				},
				[]string{"outcome"},
			),
		}

		prometheus.MustRegister(
			m.addDuration,
			m.searchDuration,
			m.searchResults,
			m.evictDuration,
			m.memoryEntriesTotal,
			m.deletesTotal,
			m.degradedTotal,
			m.embeddingFailures,
			m.embeddingCacheHits,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns an http.Handler serving the Prometheus registry.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordMemoryAdd(duration time.Duration) {
	getMetrics().addDuration.Observe(duration.Seconds())
}

func RecordMemorySearch(duration time.Duration, results int) {
	m := getMetrics()
	m.searchDuration.Observe(duration.Seconds())
	m.searchResults.Observe(float64(results))
}

func RecordMemoryEvict(duration time.Duration) {
	getMetrics().evictDuration.Observe(duration.Seconds())
}

func SetMemoryEntries(total int) {
	getMetrics().memoryEntriesTotal.Set(float64(total))
}

func RecordMemoryDelete(removed bool) {
	outcome := "not_found"
	if removed {
		outcome = "removed"
	}
	getMetrics().deletesTotal.WithLabelValues(outcome).Inc()
}

// RecordSearchDegraded counts a retrieval path ("dense" or "sparse") that
// contributed nothing because of a failure, not because of zero matches.
func RecordSearchDegraded(path string) {
	getMetrics().degradedTotal.WithLabelValues(path).Inc()
}

func RecordEmbeddingFailure() {
	getMetrics().embeddingFailures.Inc()
}

func RecordEmbeddingCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	getMetrics().embeddingCacheHits.WithLabelValues(outcome).Inc()
}
