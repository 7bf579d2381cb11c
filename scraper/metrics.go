package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the review ETL run.
type Metrics struct {
	Registry              *prometheus.Registry
	RequestsTotal         *prometheus.CounterVec
	RequestDuration       prometheus.Histogram
	PagesScrapedTotal     prometheus.Counter
	ReviewsExtractedTotal prometheus.Counter
	ReviewsDroppedTotal   prometheus.Counter
	ProductsTotal         *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec
	SeedFailuresTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_requests_total",
			Help: "Total HTTP requests issued for review pages.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reviews_request_duration_seconds",
			Help:    "HTTP request latency for review pages.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_pages_scraped_total",
			Help: "Total number of review pages fetched and extracted.",
		},
	)
	extracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_extracted_total",
			Help: "Total number of aligned reviews produced by the aggregator.",
		},
	)
	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reviews_alignment_dropped_total",
			Help: "Reviewer and date entries discarded by truncation alignment.",
		},
	)
	products := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_products_total",
			Help: "Seed URLs processed by outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_errors_total",
			Help: "Failed HTTP requests by error type.",
		},
		[]string{"error_type"},
	)

	seedFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviews_seed_failures_total",
			Help: "Seed URLs that failed, by error kind.",
		},
		[]string{"kind"},
	)

	registry.MustRegister(requests, requestDuration, pages, extracted, dropped, products, errorsTotal, seedFailures)

	return &Metrics{
		Registry:              registry,
		RequestsTotal:         requests,
		RequestDuration:       requestDuration,
		PagesScrapedTotal:     pages,
		ReviewsExtractedTotal: extracted,
		ReviewsDroppedTotal:   dropped,
		ProductsTotal:         products,
		ErrorsTotal:           errorsTotal,
		SeedFailuresTotal:     seedFailures,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the pages scraped counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesScrapedTotal.Inc()
}

// AddReviews adds aligned and dropped review counts.
func (m *Metrics) AddReviews(extracted, dropped int) {
	if m == nil {
		return
	}
	m.ReviewsExtractedTotal.Add(float64(extracted))
	m.ReviewsDroppedTotal.Add(float64(dropped))
}

// IncProduct increments the products counter for an outcome label.
func (m *Metrics) IncProduct(outcome string) {
	if m == nil {
		return
	}
	m.ProductsTotal.WithLabelValues(outcome).Inc()
}

// IncSeedFailure increments the seed failures counter for an error kind.
func (m *Metrics) IncSeedFailure(kind string) {
	if m == nil {
		return
	}
	m.SeedFailuresTotal.WithLabelValues(kind).Inc()
}

// IncError increments the request errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
