package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for fetching, extraction and solving.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	CacheHitsTotal     prometheus.Counter
	PricesExtracted    *prometheus.CounterVec
	MarketplaceResults *prometheus.CounterVec
	SolverIterations   prometheus.Histogram
	ClampsTotal        *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricer_fetch_requests_total",
			Help: "Total page fetches issued, by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricer_fetch_duration_seconds",
			Help:    "Latency of page fetches through the render proxy.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90},
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricer_fetch_retries_total",
			Help: "Total number of fetch retry attempts.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricer_errors_total",
			Help: "Total number of fetch and extraction errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pricer_page_cache_hits_total",
			Help: "Page fetches served from the in-memory cache.",
		},
	)
	pricesExtracted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricer_prices_extracted_total",
			Help: "Validated competitor prices extracted, by marketplace.",
		},
		[]string{"marketplace"},
	)
	marketplaceResults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricer_marketplace_results_total",
			Help: "Marketplace extraction outcomes by marketplace and status.",
		},
		[]string{"marketplace", "status"},
	)
	solverIterations := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricer_solver_iterations",
			Help:    "Fixed-point rounds used per solve.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)
	clamps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricer_solver_clamps_total",
			Help: "Suggested prices clamped into the competitive band, by direction.",
		},
		[]string{"direction"},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal, cacheHits,
		pricesExtracted, marketplaceResults, solverIterations, clamps)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
		CacheHitsTotal:     cacheHits,
		PricesExtracted:    pricesExtracted,
		MarketplaceResults: marketplaceResults,
		SolverIterations:   solverIterations,
		ClampsTotal:        clamps,
	}
}

// IncRequest increments the requests counter for an outcome.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit counts a page served from cache.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// ObserveMarketplace records one marketplace outcome and its validated price count.
func (m *Metrics) ObserveMarketplace(marketplace, status string, prices int) {
	if m == nil {
		return
	}
	m.MarketplaceResults.WithLabelValues(marketplace, status).Inc()
	if prices > 0 {
		m.PricesExtracted.WithLabelValues(marketplace).Add(float64(prices))
	}
}

// ObserveSolve records solver iterations and any clamp applied.
func (m *Metrics) ObserveSolve(iterations int, clamp string) {
	if m == nil {
		return
	}
	m.SolverIterations.Observe(float64(iterations))
	if clamp != "" {
		m.ClampsTotal.WithLabelValues(clamp).Inc()
	}
}
