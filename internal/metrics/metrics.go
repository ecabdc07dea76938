// Package metrics holds the Prometheus collectors for ingestion and feed
// refresh.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Feed refresh results.
const (
	ResultOK           = "ok"
	ResultEmpty        = "empty"
	ResultFetchError   = "fetch_error"
	ResultStoreError   = "store_error"
	formatUnrecognized = "none"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal    *prometheus.CounterVec
	ingestedEvents *prometheus.CounterVec
	ingestDuration prometheus.Histogram
	feedRefresh    *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ingestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evstage",
		Name:      "ingest_total",
		Help:      "Ingestion runs by detected format",
	}, []string{"format"})
	m.ingestedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evstage",
		Name:      "ingested_events_total",
		Help:      "Events extracted by detected format",
	}, []string{"format"})
	m.ingestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "evstage",
		Name:      "ingest_duration_seconds",
		Help:      "Time spent detecting and parsing one input",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
	})
	m.feedRefresh = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evstage",
		Name:      "feed_refresh_total",
		Help:      "Feed refreshes by result",
	}, []string{"result"})

	m.registry.MustRegister(
		m.ingestTotal, m.ingestedEvents, m.ingestDuration, m.feedRefresh,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveIngest records one ingestion run. An empty format is recorded as
// "none".
func (m *Metrics) ObserveIngest(format string, events int, d time.Duration) {
	if m == nil {
		return
	}
	if format == "" {
		format = formatUnrecognized
	}
	m.ingestTotal.WithLabelValues(format).Inc()
	m.ingestedEvents.WithLabelValues(format).Add(float64(events))
	m.ingestDuration.Observe(d.Seconds())
}

// FeedRefreshed records the result of one feed refresh.
func (m *Metrics) FeedRefreshed(result string) {
	if m == nil {
		return
	}
	m.feedRefresh.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
