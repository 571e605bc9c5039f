// Package metrics provides Prometheus metrics collection for the binsift
// classification service. It defines the counters, gauges, and histograms
// exposed via the metrics endpoint for monitoring corpus loading, feature
// extraction, training runs, and predictions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the classification service.
type Metrics struct {
	// Corpus metrics
	SamplesLoaded prometheus.Counter // Total number of samples loaded
	LoadWarnings  prometheus.Counter // Total number of unreadable samples skipped
	BytesLoaded   prometheus.Counter // Total bytes read from the corpus

	// Feature extraction metrics
	Extractions         prometheus.Counter   // Total number of feature extractions performed
	ExtractionCacheHits prometheus.Counter   // Extractions served from the content-hash cache
	ExtractionDuration  prometheus.Histogram // Duration of one extraction in seconds

	// Training metrics
	TrainingDuration  prometheus.Histogram // Duration of a full training run in seconds
	CandidateFailures prometheus.Counter   // Panel candidates that failed to fit
	ModelAccuracy     prometheus.Gauge     // Held-out accuracy of the active model
	ModelAge          prometheus.Gauge     // Age of the active model in seconds

	// Prediction metrics
	Predictions      prometheus.Counter   // Total number of predictions made
	PredictionScores prometheus.Histogram // Distribution of prediction confidence scores

	// Intel metrics
	IntelLookups prometheus.Counter // Total number of external intel lookups
	IntelErrors  prometheus.Counter // Total number of failed intel lookups

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		SamplesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "samples_loaded_total",
			Help: "Total number of samples loaded from the corpus",
		}),
		LoadWarnings: factory.NewCounter(prometheus.CounterOpts{
			Name: "load_warnings_total",
			Help: "Total number of unreadable samples skipped during loading",
		}),
		BytesLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "bytes_loaded_total",
			Help: "Total bytes read from the corpus",
		}),
		Extractions: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_extractions_total",
			Help: "Total number of feature extractions performed",
		}),
		ExtractionCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_extraction_cache_hits_total",
			Help: "Feature extractions served from the content-hash cache",
		}),
		ExtractionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feature_extraction_duration_seconds",
			Help:    "Duration of one feature extraction in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Duration of a full training run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		CandidateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "candidate_failures_total",
			Help: "Panel candidates that failed to fit",
		}),
		ModelAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_accuracy",
			Help: "Held-out accuracy of the active model",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the active model in seconds",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions made",
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of prediction confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		IntelLookups: factory.NewCounter(prometheus.CounterOpts{
			Name: "intel_lookups_total",
			Help: "Total number of external intel lookups",
		}),
		IntelErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "intel_errors_total",
			Help: "Total number of failed intel lookups",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
