package datastore

import (
	"context"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// FeedbackTypes lists the accepted feedback verdicts.
var FeedbackTypes = []string{FeedbackCorrect, FeedbackIncorrect, FeedbackUncertain}

// ValidFeedbackType reports whether t is an accepted verdict.
func ValidFeedbackType(t string) bool {
	return slices.Contains(FeedbackTypes, t)
}

// SubmitPredictionFeedback appends a feedback row for an existing prediction. An
// "incorrect" verdict needs the actual label.
func (ds *DataStore) SubmitPredictionFeedback(ctx context.Context, in FeedbackInput) (uint, error) {
	start := time.Now()
	in.FeedbackType = strings.ToLower(strings.TrimSpace(in.FeedbackType))
	in.ActualLabel = strings.TrimSpace(in.ActualLabel)

	if !ValidFeedbackType(in.FeedbackType) {
		return 0, validationError("feedback type must be one of correct, incorrect, uncertain",
			"feedback_type", in.FeedbackType)
	}
	if in.FeedbackType == FeedbackIncorrect && in.ActualLabel == "" {
		return 0, validationError("actual label is required when the prediction is incorrect",
			"actual_label", in.ActualLabel)
	}

	if err := ds.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	db, err := ds.conn(ctx)
	if err != nil {
		return 0, err
	}

	var exists int64
	if err := db.Model(&Prediction{}).Where("id = ?", in.PredictionID).Count(&exists).Error; err != nil {
		ds.observe(metrics.OpDbQuery, "predictions", start, err)
		return 0, dbError(err, "submit_feedback", errors.PriorityMedium, "prediction_id", in.PredictionID)
	}
	if exists == 0 {
		return 0, notFoundError("prediction", in.PredictionID)
	}

	row := PredictionFeedback{
		PredictionID: in.PredictionID,
		FeedbackType: in.FeedbackType,
		ActualLabel:  optionalString(in.ActualLabel),
		Notes:        optionalString(strings.TrimSpace(in.Notes)),
		User:         optionalString(in.User),
		CreatedAt:    ds.now(),
	}
	err = db.Create(&row).Error
	ds.observe(metrics.OpDbInsert, "prediction_feedback", start, err)
	if err != nil {
		return 0, dbError(err, "submit_feedback", errors.PriorityMedium, "prediction_id", in.PredictionID)
	}
	return row.ID, nil
}

// GetPredictionFeedback returns the newest feedback row for a prediction.
func (ds *DataStore) GetPredictionFeedback(ctx context.Context, predictionID uint) (*PredictionFeedback, error) {
	start := time.Now()
	db, err := ds.conn(ctx)
	if err != nil {
		return nil, err
	}
	var fb PredictionFeedback
	err = db.Where("prediction_id = ?", predictionID).
		Order("created_at DESC").Order("id DESC").
		Take(&fb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = notFoundError("feedback", predictionID)
		ds.observe(metrics.OpDbQuery, "prediction_feedback", start, err)
		return nil, err
	}
	ds.observe(metrics.OpDbQuery, "prediction_feedback", start, err)
	if err != nil {
		return nil, dbError(err, "get_feedback", errors.PriorityMedium, "prediction_id", predictionID)
	}
	return &fb, nil
}
