// Package metrics provides Prometheus metrics for the neurodecode pipeline:
// classification runs, cross-validation scores, decoder usage, and dataset
// size, exposed via the standard Prometheus endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	ClassificationsTotal   prometheus.Counter   // Completed classification calls
	ClassificationFailures prometheus.Counter   // Failed classification calls
	FitLatency             prometheus.Histogram // Fit / cross-validation wall time in seconds
	CrossValScores         prometheus.Histogram // Distribution of cross-validated scores
	DecodesTotal           prometheus.Counter   // Images decoded
	DatasetStudies         prometheus.Gauge     // Studies currently in the dataset
	FetchFailures          prometheus.Counter   // Failed dataset archive downloads
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for tests).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ClassificationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "classifications_total",
			Help: "Total number of completed classification calls",
		}),
		ClassificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "classification_failures_total",
			Help: "Total number of failed classification calls",
		}),
		FitLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fit_latency_seconds",
			Help:    "Classifier fit and cross-validation wall time in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		CrossValScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cross_val_scores",
			Help:    "Distribution of cross-validated classification scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		DecodesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "decodes_total",
			Help: "Total number of images decoded",
		}),
		DatasetStudies: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dataset_studies",
			Help: "Number of studies currently in the dataset",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fetch_failures_total",
			Help: "Total number of failed dataset archive downloads",
		}),
	}
}
