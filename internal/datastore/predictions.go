package datastore

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// DefaultFetchLimit is used when FetchPredictions gets a non-positive limit.
const DefaultFetchLimit = 50

func validatePredictionInput(in PredictionInput) error {
	switch {
	case in.Filename == "":
		return validationError("filename is required", "filename", in.Filename)
	case in.PredictedLabel == "":
		return validationError("predicted label is required", "predicted_label", in.PredictedLabel)
	case math.IsNaN(in.Confidence) || in.Confidence < 0 || in.Confidence > 1:
		return validationError("confidence must be within [0,1]", "confidence", in.Confidence)
	case in.ProcessingTimeMs != nil && *in.ProcessingTimeMs < 0:
		return validationError("processing time must not be negative", "processing_time_ms", *in.ProcessingTimeMs)
	}
	return nil
}

// LogPrediction inserts one prediction and returns its id. confidence_score is always
// written and mirrors confidence.
func (ds *DataStore) LogPrediction(ctx context.Context, in PredictionInput) (uint, error) {
	start := time.Now()
	if err := validatePredictionInput(in); err != nil {
		return 0, err
	}
	if err := ds.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	db, err := ds.conn(ctx)
	if err != nil {
		return 0, err
	}

	b := NewInsertBuilder("predictions").
		Set("filename", in.Filename).
		Set("predicted_label", in.PredictedLabel).
		Set("confidence", in.Confidence).
		Set("confidence_score", in.Confidence).
		Set("created_at", ds.now()).
		SetIf(in.User != "", "user", in.User).
		SetIf(in.ModelVersion != "", "model_version", in.ModelVersion).
		SetIf(in.PatientID != "", "patient_id", in.PatientID)
	if in.ProcessingTimeMs != nil {
		b.Set("processing_time_ms", *in.ProcessingTimeMs)
	}
	if in.Probabilities != nil {
		raw, err := json.Marshal(in.Probabilities)
		if err != nil {
			return 0, validationError("probabilities are not serialisable", "probabilities", err)
		}
		b.Set("probabilities", string(raw))
	}

	id, err := b.Exec(ctx, db)
	ds.observe(metrics.OpDbInsert, "predictions", start, err)
	if err != nil {
		return 0, dbError(err, "log_prediction", errors.PriorityHigh, "filename", in.Filename)
	}
	return id, nil
}

// FetchPredictions returns the newest predictions first.
func (ds *DataStore) FetchPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	start := time.Now()
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	db, err := ds.conn(ctx)
	if err != nil {
		return nil, err
	}
	var out []Prediction
	err = db.Order("id DESC").Limit(limit).Find(&out).Error
	ds.observe(metrics.OpDbQuery, "predictions", start, err)
	if err != nil {
		return nil, dbError(err, "fetch_predictions", errors.PriorityMedium, "limit", limit)
	}
	if ds.metrics != nil {
		ds.metrics.RecordQueryResultSize(metrics.OpDbQuery, "predictions", len(out))
	}
	return out, nil
}

// GetPrediction loads one prediction by id.
func (ds *DataStore) GetPrediction(ctx context.Context, id uint) (*Prediction, error) {
	start := time.Now()
	db, err := ds.conn(ctx)
	if err != nil {
		return nil, err
	}
	var p Prediction
	err = db.First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = notFoundError("prediction", id)
		ds.observe(metrics.OpDbQuery, "predictions", start, err)
		return nil, err
	}
	ds.observe(metrics.OpDbQuery, "predictions", start, err)
	if err != nil {
		return nil, dbError(err, "get_prediction", errors.PriorityMedium, "id", id)
	}
	return &p, nil
}

// UpdatePredictionReportPath records where the report for a prediction was written.
func (ds *DataStore) UpdatePredictionReportPath(ctx context.Context, id uint, path string) error {
	start := time.Now()
	if err := ds.EnsureSchema(ctx); err != nil {
		return err
	}
	db, err := ds.conn(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&Prediction{}).Where("id = ?", id).Update("report_path", path)
	if res.Error != nil {
		ds.observe(metrics.OpDbUpdate, "predictions", start, res.Error)
		return dbError(res.Error, "update_report_path", errors.PriorityMedium, "id", id)
	}
	if res.RowsAffected == 0 {
		err := notFoundError("prediction", id)
		ds.observe(metrics.OpDbUpdate, "predictions", start, err)
		return err
	}
	ds.observe(metrics.OpDbUpdate, "predictions", start, nil)
	return nil
}
