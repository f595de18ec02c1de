// Package metrics provides Prometheus metric collectors for the scraper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScraperMetrics contains Prometheus metrics for catalog fetch and pipeline
// operations.
type ScraperMetrics struct {
	registry *prometheus.Registry

	fetchTotal         *prometheus.CounterVec
	fetchDuration      *prometheus.HistogramVec
	retryTotal         *prometheus.CounterVec
	classifiedTotal    *prometheus.CounterVec
	duplicateFlagTotal prometheus.Counter
	watchlistSize      prometheus.Gauge
	runDuration        *prometheus.HistogramVec

	collectors []prometheus.Collector
}

// NewScraperMetrics creates and registers new scraper metrics
func NewScraperMetrics(registry *prometheus.Registry) (*ScraperMetrics, error) {
	m := &ScraperMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ScraperMetrics) initMetrics() {
	m.fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steam_fetch_total",
			Help: "Total number of Steam API fetches by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)
	m.fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steam_fetch_duration_seconds",
			Help:    "Duration of Steam API fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	m.retryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steam_fetch_retries_total",
			Help: "Total number of fetch retries by reason",
		},
		[]string{"reason"},
	)
	m.classifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_classified_total",
			Help: "Identifiers classified per detection stage",
		},
		[]string{"stage"},
	)
	m.duplicateFlagTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discovery_duplicate_flags_total",
			Help: "Titles flagged as probable duplicate listings",
		},
	)
	m.watchlistSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchlist_entries",
			Help: "Current number of tracked watchlist entries",
		},
	)
	m.runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_run_duration_seconds",
			Help:    "Duration of complete pipeline runs",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
		},
		[]string{"command"},
	)

	m.collectors = []prometheus.Collector{
		m.fetchTotal,
		m.fetchDuration,
		m.retryTotal,
		m.classifiedTotal,
		m.duplicateFlagTotal,
		m.watchlistSize,
		m.runDuration,
	}
}

// Describe implements prometheus.Collector
func (m *ScraperMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *ScraperMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordFetch records one fetch outcome for the given endpoint.
func (m *ScraperMetrics) RecordFetch(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchTotal.WithLabelValues(endpoint, status).Inc()
	m.fetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt with its reason.
func (m *ScraperMetrics) RecordRetry(reason string) {
	if m == nil {
		return
	}
	m.retryTotal.WithLabelValues(reason).Inc()
}

// RecordClassification records one classified identifier per stage.
func (m *ScraperMetrics) RecordClassification(stage string) {
	if m == nil {
		return
	}
	m.classifiedTotal.WithLabelValues(stage).Inc()
}

// RecordDuplicateFlag records one duplicate candidate flag.
func (m *ScraperMetrics) RecordDuplicateFlag() {
	if m == nil {
		return
	}
	m.duplicateFlagTotal.Inc()
}

// SetWatchlistSize updates the tracked watchlist entry gauge.
func (m *ScraperMetrics) SetWatchlistSize(n int) {
	if m == nil {
		return
	}
	m.watchlistSize.Set(float64(n))
}

// RecordRunDuration records the wall-clock duration of a pipeline run.
func (m *ScraperMetrics) RecordRunDuration(command string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(command).Observe(duration.Seconds())
}
