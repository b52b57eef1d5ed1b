package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestDatastoreMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewDatastoreMetrics(reg)
	require.NoError(t, err)

	m.RecordDbOperation(OpDbInsert, "predictions", LabelSuccess)
	m.RecordDbOperation(OpDbInsert, "predictions", LabelSuccess)
	m.RecordCacheOperation("analytics", LabelHit)

	assert.InDelta(t, 2, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues(OpDbInsert, "predictions", LabelSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheOperationsTotal.WithLabelValues("analytics", LabelHit)), 0)

	_, err = NewDatastoreMetrics(reg)
	require.Error(t, err, "registering twice on one registry must fail")
}

func TestNilRecordersAreNoops(t *testing.T) {
	t.Parallel()

	var d *DatastoreMetrics
	var c *ClassifierMetrics
	var h *HTTPMetrics
	var tr *TrainingMetrics
	assert.NotPanics(t, func() {
		d.RecordDbOperation(OpDbQuery, "users", LabelError)
		d.RecordAnalyticsOperation("totals", LabelSuccess, 0.1)
		c.RecordPrediction("Normal", "v1", 0.9, 0.2)
		c.RecordModelLoad(nil)
		h.RecordHTTPRequest("GET", "/health", 200, 0.01)
		tr.RecordEpoch(1, 0.5, 0.6, 0.7, 0.7, 1e-3)
	})
}

func TestClassifierMetricsLabels(t *testing.T) {
	t.Parallel()

	m, err := NewClassifierMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordPrediction("Benign", "v1", 0.82, 0.05)
	m.RecordPredictionError(errors.ValidationError("imaging", "bad size"))
	m.RecordModelLoad(nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.PredictionCounter.WithLabelValues("Benign")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PredictionErrors.WithLabelValues(string(errors.CategoryValidation))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ModelLoadedGauge), 0)
}

func TestTrainingMetricsRecordEpoch(t *testing.T) {
	t.Parallel()

	m, err := NewTrainingMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.RecordEpoch(3, 0.4, 0.5, 0.75, 0.8, 5e-4)

	assert.InDelta(t, 3, testutil.ToFloat64(m.Epoch), 0)
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.Loss.WithLabelValues(LabelVal)), 1e-12)
	assert.InDelta(t, 0.8, testutil.ToFloat64(m.BestAccuracy), 1e-12)
}
