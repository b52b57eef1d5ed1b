// Package metrics provides custom Prometheus metrics for the sonoscan service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sonoscan/sonoscan/internal/errors"
)

// ClassifierMetrics contains Prometheus metrics for model inference and explanation.
// A nil *ClassifierMetrics records nothing.
type ClassifierMetrics struct {
	PredictionCounter  *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	PredictionErrors   *prometheus.CounterVec
	GradCAMDuration    *prometheus.HistogramVec
	ModelLoadTotal     *prometheus.CounterVec
	ModelLoadedGauge   prometheus.Gauge
	ConfidenceHist     *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewClassifierMetrics creates and registers the classifier metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register classifier metrics: %w", err)
	}
	return m, nil
}

func (m *ClassifierMetrics) initMetrics() {
	m.PredictionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonoscan_predictions_total",
			Help: "Total number of predictions partitioned by predicted label.",
		},
		[]string{"label"},
	)

	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonoscan_inference_duration_seconds",
			Help:    "Time taken to preprocess and classify one image",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount10), // 10ms to ~5s
		},
		[]string{"model_version"},
	)

	m.PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonoscan_prediction_errors_total",
			Help: "Total number of failed predictions",
		},
		[]string{"error_type"},
	)

	m.GradCAMDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonoscan_gradcam_duration_seconds",
			Help:    "Time taken to compute a Grad-CAM heatmap",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount10),
		},
		[]string{"target_layer"},
	)

	m.ModelLoadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonoscan_model_load_total",
			Help: "Total number of model load attempts",
		},
		[]string{"status"},
	)

	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonoscan_model_loaded",
			Help: "Whether the classifier is currently loaded (1) or not (0)",
		},
	)

	m.ConfidenceHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonoscan_prediction_confidence",
			Help:    "Confidence of the top class per prediction",
			Buckets: []float64{0.5, 0.7, 0.8, 0.9, 1},
		},
		[]string{"label"},
	)
}

// RecordPrediction records a finished prediction.
func (m *ClassifierMetrics) RecordPrediction(label, modelVersion string, confidence, durationSeconds float64) {
	if m == nil {
		return
	}
	m.PredictionCounter.WithLabelValues(label).Inc()
	m.PredictionDuration.WithLabelValues(modelVersion).Observe(durationSeconds)
	m.ConfidenceHist.WithLabelValues(label).Observe(confidence)
}

// RecordPredictionError records a failed prediction.
func (m *ClassifierMetrics) RecordPredictionError(err error) {
	if m == nil {
		return
	}
	m.PredictionErrors.WithLabelValues(categorizeError(err)).Inc()
}

// RecordGradCAM records the duration of one explanation.
func (m *ClassifierMetrics) RecordGradCAM(layer string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.GradCAMDuration.WithLabelValues(layer).Observe(durationSeconds)
}

// RecordModelLoad records a model load attempt.
func (m *ClassifierMetrics) RecordModelLoad(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ModelLoadTotal.WithLabelValues(LabelError).Inc()
		m.ModelLoadedGauge.Set(0)
		return
	}
	m.ModelLoadTotal.WithLabelValues(LabelSuccess).Inc()
	m.ModelLoadedGauge.Set(1)
}

// categorizeError returns the error category as a label value.
func categorizeError(err error) string {
	if err == nil {
		return "none"
	}
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return string(ee.Category)
	}
	return "unknown"
}

// Describe implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.PredictionCounter.Describe(ch)
	m.PredictionDuration.Describe(ch)
	m.PredictionErrors.Describe(ch)
	m.GradCAMDuration.Describe(ch)
	m.ModelLoadTotal.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
	m.ConfidenceHist.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	m.PredictionCounter.Collect(ch)
	m.PredictionDuration.Collect(ch)
	m.PredictionErrors.Collect(ch)
	m.GradCAMDuration.Collect(ch)
	m.ModelLoadTotal.Collect(ch)
	ch <- m.ModelLoadedGauge
	m.ConfidenceHist.Collect(ch)
}
