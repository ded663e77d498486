// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	WebhookEventsTotal   *prometheus.CounterVec
	SignatureFailures    prometheus.Counter
	TrackingRecordsTotal prometheus.Counter
	GeocodeLookupsTotal  *prometheus.CounterVec
	GeocodeCacheHits     prometheus.Counter
	GeocodeCacheMisses   prometheus.Counter
	EnrichmentRunsTotal  prometheus.Counter
	EnrichmentBatchSize  prometheus.Histogram
	ContactsGeocoded     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Total webhook deliveries by event type and outcome.",
			},
			[]string{"event_type", "outcome"},
		),
		SignatureFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webhook_signature_failures_total",
				Help: "Total webhook deliveries rejected for bad signatures.",
			},
		),
		TrackingRecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracking_records_total",
				Help: "Total tracking records persisted.",
			},
		),
		GeocodeLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocode_lookups_total",
				Help: "Total geocode lookups by query source (address, city) and outcome (hit, miss).",
			},
			[]string{"source", "outcome"},
		),
		GeocodeCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "geocode_cache_hits_total",
				Help: "Total geocode cache hits.",
			},
		),
		GeocodeCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "geocode_cache_misses_total",
				Help: "Total geocode cache misses.",
			},
		),
		EnrichmentRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "enrichment_runs_total",
				Help: "Total enrichment batch runs.",
			},
		),
		EnrichmentBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "enrichment_batch_size",
				Help:    "Number of contacts processed per enrichment run.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ContactsGeocoded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "contacts_geocoded_total",
				Help: "Total contacts successfully geocoded.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.WebhookEventsTotal,
		m.SignatureFailures,
		m.TrackingRecordsTotal,
		m.GeocodeLookupsTotal,
		m.GeocodeCacheHits,
		m.GeocodeCacheMisses,
		m.EnrichmentRunsTotal,
		m.EnrichmentBatchSize,
		m.ContactsGeocoded,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
