package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TrainingMetrics exports the progress of a training run as gauges.
// A nil *TrainingMetrics records nothing.
type TrainingMetrics struct {
	Epoch        prometheus.Gauge
	Loss         *prometheus.GaugeVec
	ValAccuracy  prometheus.Gauge
	BestAccuracy prometheus.Gauge
	LearningRate prometheus.Gauge
}

// NewTrainingMetrics creates and registers the training gauges.
func NewTrainingMetrics(registry *prometheus.Registry) (*TrainingMetrics, error) {
	m := &TrainingMetrics{
		Epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sonoscan_training_epoch",
			Help: "Last completed training epoch",
		}),
		Loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sonoscan_training_loss",
			Help: "Mean loss of the last epoch",
		}, []string{"split"}),
		ValAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sonoscan_training_val_accuracy",
			Help: "Validation accuracy of the last epoch",
		}),
		BestAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sonoscan_training_best_val_accuracy",
			Help: "Best validation accuracy so far",
		}),
		LearningRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sonoscan_training_learning_rate",
			Help: "Learning rate used in the last epoch",
		}),
	}
	for _, c := range []prometheus.Collector{m.Epoch, m.Loss, m.ValAccuracy, m.BestAccuracy, m.LearningRate} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordEpoch records the results of one epoch.
func (m *TrainingMetrics) RecordEpoch(epoch int, trainLoss, valLoss, valAcc, bestAcc, lr float64) {
	if m == nil {
		return
	}
	m.Epoch.Set(float64(epoch))
	m.Loss.WithLabelValues(LabelTrain).Set(trainLoss)
	m.Loss.WithLabelValues(LabelVal).Set(valLoss)
	m.ValAccuracy.Set(valAcc)
	m.BestAccuracy.Set(bestAcc)
	m.LearningRate.Set(lr)
}
