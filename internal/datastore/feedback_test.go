package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestSubmitPredictionFeedback(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	predID, err := store.LogPrediction(ctx, PredictionInput{Filename: "a.png", PredictedLabel: "Malignant", Confidence: 0.62, User: "alice"})
	require.NoError(t, err)
	require.Equal(t, uint(1), predID)

	fbID, err := store.SubmitPredictionFeedback(ctx, FeedbackInput{
		PredictionID: 1,
		FeedbackType: "incorrect",
		ActualLabel:  "Benign",
		Notes:        "biopsy confirmed",
		User:         "drbob",
	})
	require.NoError(t, err)
	assert.Positive(t, fbID)

	fb, err := store.GetPredictionFeedback(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, FeedbackIncorrect, fb.FeedbackType)
	assert.Equal(t, ptr("Benign"), fb.ActualLabel)
	assert.Equal(t, ptr("biopsy confirmed"), fb.Notes)
	assert.Equal(t, ptr("drbob"), fb.User)
}

func TestSubmitPredictionFeedbackRejects(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.LogPrediction(ctx, PredictionInput{Filename: "a.png", PredictedLabel: "Normal", Confidence: 0.9})
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       FeedbackInput
		category errors.ErrorCategory
	}{
		{"unknown type", FeedbackInput{PredictionID: 1, FeedbackType: "maybe"}, errors.CategoryValidation},
		{"incorrect without label", FeedbackInput{PredictionID: 1, FeedbackType: "incorrect"}, errors.CategoryValidation},
		{"blank label", FeedbackInput{PredictionID: 1, FeedbackType: "incorrect", ActualLabel: "   "}, errors.CategoryValidation},
		{"unknown prediction", FeedbackInput{PredictionID: 77, FeedbackType: "correct"}, errors.CategoryNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.SubmitPredictionFeedback(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
		})
	}

	var rows int64
	require.NoError(t, store.DB().Model(&PredictionFeedback{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestFeedbackResubmissionAppendsAndLatestWins(t *testing.T) {
	t.Parallel()
	store, clock := newTestStore(t)
	ctx := context.Background()

	_, err := store.LogPrediction(ctx, PredictionInput{Filename: "a.png", PredictedLabel: "Benign", Confidence: 0.7})
	require.NoError(t, err)

	_, err = store.SubmitPredictionFeedback(ctx, FeedbackInput{PredictionID: 1, FeedbackType: "correct"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = store.SubmitPredictionFeedback(ctx, FeedbackInput{PredictionID: 1, FeedbackType: "Uncertain"})
	require.NoError(t, err)

	fb, err := store.GetPredictionFeedback(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, FeedbackUncertain, fb.FeedbackType)

	// equal timestamps fall back to the newest id
	_, err = store.SubmitPredictionFeedback(ctx, FeedbackInput{PredictionID: 1, FeedbackType: "incorrect", ActualLabel: "Normal"})
	require.NoError(t, err)
	fb, err = store.GetPredictionFeedback(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, FeedbackIncorrect, fb.FeedbackType)

	var rows int64
	require.NoError(t, store.DB().Model(&PredictionFeedback{}).Count(&rows).Error)
	assert.Equal(t, int64(3), rows)
}

func TestGetPredictionFeedbackNone(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	_, err := store.GetPredictionFeedback(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
