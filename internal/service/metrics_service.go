package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	chainDuration *prometheus.HistogramVec
	chainHops     prometheus.Histogram

	docCacheHits   prometheus.Counter
	docCacheMisses prometheus.Counter

	reviewTransitions *prometheus.CounterVec
	versionConflicts  prometheus.Counter
}

// NewMetricsService registers the engine's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	chainDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reference_chain_resolution_seconds",
		Help:    "Duration of reference chain resolutions",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	chainHops := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reference_chain_hops",
		Help:    "Number of hops walked per resolved chain",
		Buckets: []float64{0, 1, 2, 3, 4},
	})

	docCacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_cache_hits_total",
		Help: "Document cache hits",
	})
	docCacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "document_cache_misses_total",
		Help: "Document cache misses",
	})

	reviewTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "review_transitions_total",
		Help: "Review state machine transitions",
	}, []string{"from", "to"})

	versionConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "review_version_conflicts_total",
		Help: "Submissions rejected because another version held the review slot",
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		chainDuration, chainHops,
		docCacheHits, docCacheMisses,
		reviewTransitions, versionConflicts,
	)

	return &MetricsService{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		chainDuration:     chainDuration,
		chainHops:         chainHops,
		docCacheHits:      docCacheHits,
		docCacheMisses:    docCacheMisses,
		reviewTransitions: reviewTransitions,
		versionConflicts:  versionConflicts,
	}
}

// Handler exposes the /metrics endpoint for this registry.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, fmt.Sprintf("%d", status)}
	m.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveChainResolution records one chain walk.
func (m *MetricsService) ObserveChainResolution(hops int, duration time.Duration, outcome string) {
	m.chainDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == "ok" {
		m.chainHops.Observe(float64(hops))
	}
}

// RecordDocumentCache records a cache lookup.
func (m *MetricsService) RecordDocumentCache(hit bool) {
	if hit {
		m.docCacheHits.Inc()
		return
	}
	m.docCacheMisses.Inc()
}

// RecordReviewTransition counts one state machine transition.
func (m *MetricsService) RecordReviewTransition(from, to string) {
	m.reviewTransitions.WithLabelValues(from, to).Inc()
}

// RecordVersionConflict counts one lost claim.
func (m *MetricsService) RecordVersionConflict() {
	m.versionConflicts.Inc()
}
