// Package observability provides metrics collection for the scraper.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwang48/steam-scraper/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Scraper  *metrics.ScraperMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric
// collectors against a fresh registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	scraperMetrics, err := metrics.NewScraperMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create scraper metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Scraper:  scraperMetrics,
	}, nil
}

// Registry exposes the underlying registry for gatherers (tests, push
// exporters).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
