// Package metrics exposes Prometheus collectors for ingestion, forecasting and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the application metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	IngestFilesTotal   *prometheus.CounterVec
	IngestRecordsTotal *prometheus.CounterVec
	IngestErrorsTotal  *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	IndexDatasets      prometheus.Gauge

	ForecastCellsTotal *prometheus.CounterVec
	ForecastDuration   *prometheus.HistogramVec

	JourneysTotal *prometheus.CounterVec

	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics on a fresh registry.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		IngestFilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_files_total",
			Help:      "Files processed by ingestion, by outcome",
		}, []string{"outcome"}),

		IngestRecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Records published to the index, by pollutant",
		}, []string{"pollutant"}),

		IngestErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Ingestion errors by type",
		}, []string{"error_type"}),

		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of directory ingestion runs",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),

		IndexDatasets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_datasets",
			Help:      "Grid datasets currently held in the index",
		}),

		ForecastCellsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_cells_total",
			Help:      "Forecast grid cells, by pollutant and outcome",
		}, []string{"pollutant", "outcome"}),

		ForecastDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forecast_duration_seconds",
			Help:      "Duration of a single-pollutant forecast",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"pollutant"}),

		JourneysTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journeys_total",
			Help:      "Journey planning requests, by outcome",
		}, []string{"outcome"}),

		APIRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "API requests by route, method and status",
		}, []string{"route", "method", "status"}),

		APIRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"route"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordIngestFile counts one processed file.
func (c *Collector) RecordIngestFile(outcome string) {
	if c == nil {
		return
	}
	c.IngestFilesTotal.WithLabelValues(outcome).Inc()
}

// RecordIngestRecords counts records published for pollutant.
func (c *Collector) RecordIngestRecords(pollutant string, n int) {
	if c == nil {
		return
	}
	c.IngestRecordsTotal.WithLabelValues(pollutant).Add(float64(n))
}

// RecordIngestError counts an ingestion failure.
func (c *Collector) RecordIngestError(errorType string) {
	if c == nil {
		return
	}
	c.IngestErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveIngest records a directory ingestion duration.
func (c *Collector) ObserveIngest(d time.Duration) {
	if c == nil {
		return
	}
	c.IngestDuration.Observe(d.Seconds())
}

// SetIndexDatasets sets the index size gauge.
func (c *Collector) SetIndexDatasets(n int) {
	if c == nil {
		return
	}
	c.IndexDatasets.Set(float64(n))
}

// RecordForecastCells adds n cells with the given outcome.
func (c *Collector) RecordForecastCells(pollutant, outcome string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.ForecastCellsTotal.WithLabelValues(pollutant, outcome).Add(float64(n))
}

// ObserveForecast records a forecast duration.
func (c *Collector) ObserveForecast(pollutant string, d time.Duration) {
	if c == nil {
		return
	}
	c.ForecastDuration.WithLabelValues(pollutant).Observe(d.Seconds())
}

// RecordJourney counts a journey request.
func (c *Collector) RecordJourney(outcome string) {
	if c == nil {
		return
	}
	c.JourneysTotal.WithLabelValues(outcome).Inc()
}

// ObserveAPIRequest records one HTTP request.
func (c *Collector) ObserveAPIRequest(route, method, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.APIRequestsTotal.WithLabelValues(route, method, status).Inc()
	c.APIRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
