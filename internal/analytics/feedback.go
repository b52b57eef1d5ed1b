package analytics

import (
	"context"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/datastore"
)

// FeedbackStats counts feedback rows per verdict. Resubmissions count as separate rows.
func (s *Service) FeedbackStats(ctx context.Context) (*FeedbackStats, error) {
	return run(ctx, s, "feedback_stats", func(db *gorm.DB) (*FeedbackStats, error) {
		var rows []struct {
			FeedbackType string
			Count        int64
		}
		err := db.Model(&datastore.PredictionFeedback{}).
			Select("feedback_type, COUNT(*) AS count").
			Group("feedback_type").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		out := &FeedbackStats{ByType: make(map[string]int64, len(rows))}
		for _, r := range rows {
			out.ByType[r.FeedbackType] = r.Count
			out.Total += r.Count
		}
		return out, nil
	})
}

// ModelAccuracyWithFeedback is the share of correct verdicts among correct and incorrect
// ones, as a percentage.
func (s *Service) ModelAccuracyWithFeedback(ctx context.Context) (*AccuracySummary, error) {
	return run(ctx, s, "model_accuracy_with_feedback", func(db *gorm.DB) (*AccuracySummary, error) {
		var agg struct {
			Correct   int64
			Incorrect int64
			Uncertain int64
		}
		err := db.Raw(`
			SELECT
				COALESCE(SUM(CASE WHEN f.feedback_type = ? THEN 1 ELSE 0 END), 0) AS correct,
				COALESCE(SUM(CASE WHEN f.feedback_type = ? THEN 1 ELSE 0 END), 0) AS incorrect,
				COALESCE(SUM(CASE WHEN f.feedback_type = ? THEN 1 ELSE 0 END), 0) AS uncertain
			FROM predictions p
			INNER JOIN prediction_feedback f ON p.id = f.prediction_id`,
			datastore.FeedbackCorrect, datastore.FeedbackIncorrect, datastore.FeedbackUncertain).
			Scan(&agg).Error
		if err != nil {
			return nil, err
		}
		reviewed := agg.Correct + agg.Incorrect
		return &AccuracySummary{
			TotalReviewed:  reviewed,
			CorrectCount:   agg.Correct,
			IncorrectCount: agg.Incorrect,
			UncertainCount: agg.Uncertain,
			Accuracy:       percent(agg.Correct, reviewed),
			SampleSize:     reviewed,
		}, nil
	})
}

// FeedbackByClass is the reviewed accuracy per predicted label.
func (s *Service) FeedbackByClass(ctx context.Context) ([]ClassFeedback, error) {
	return run(ctx, s, "feedback_by_class", func(db *gorm.DB) ([]ClassFeedback, error) {
		var out []ClassFeedback
		err := db.Raw(`
			SELECT
				p.predicted_label AS class,
				SUM(CASE WHEN f.feedback_type = ? THEN 1 ELSE 0 END) AS correct,
				SUM(CASE WHEN f.feedback_type = ? THEN 1 ELSE 0 END) AS incorrect,
				COUNT(*) AS total
			FROM predictions p
			INNER JOIN prediction_feedback f ON p.id = f.prediction_id
			WHERE f.feedback_type IN (?, ?)
			GROUP BY p.predicted_label
			ORDER BY p.predicted_label`,
			datastore.FeedbackCorrect, datastore.FeedbackIncorrect,
			datastore.FeedbackCorrect, datastore.FeedbackIncorrect).
			Scan(&out).Error
		for i := range out {
			out[i].Accuracy = percent(out[i].Correct, out[i].Total)
		}
		return out, err
	})
}

// FlaggedPredictions lists predictions reviewed as incorrect or uncertain, newest
// review first.
func (s *Service) FlaggedPredictions(ctx context.Context, limit int) ([]FlaggedPrediction, error) {
	limit = orDefault(limit, DefaultFlaggedRows)
	return run(ctx, s, "flagged_predictions", func(db *gorm.DB) ([]FlaggedPrediction, error) {
		var out []FlaggedPrediction
		err := db.Raw(`
			SELECT p.id, p.filename, p.predicted_label, p.confidence, p.user, p.created_at,
				f.feedback_type, f.actual_label, f.notes, f.created_at AS feedback_date
			FROM predictions p
			INNER JOIN prediction_feedback f ON p.id = f.prediction_id
			WHERE f.feedback_type IN (?, ?)
			ORDER BY f.created_at DESC, f.id DESC
			LIMIT ?`,
			datastore.FeedbackIncorrect, datastore.FeedbackUncertain, limit).
			Scan(&out).Error
		return out, err
	})
}

// UserFeedbackHistory lists the feedback one reviewer submitted, newest first.
func (s *Service) UserFeedbackHistory(ctx context.Context, username string, limit int) ([]FeedbackHistoryEntry, error) {
	limit = orDefault(limit, DefaultFeedbackRows)
	return run(ctx, s, "user_feedback_history", func(db *gorm.DB) ([]FeedbackHistoryEntry, error) {
		var out []FeedbackHistoryEntry
		err := db.Raw(`
			SELECT f.id, f.prediction_id, f.feedback_type, f.actual_label, f.notes, f.created_at,
				p.filename, p.predicted_label, p.confidence
			FROM prediction_feedback f
			INNER JOIN predictions p ON f.prediction_id = p.id
			WHERE f.user = ?
			ORDER BY f.created_at DESC, f.id DESC
			LIMIT ?`, username, limit).
			Scan(&out).Error
		return out, err
	})
}

// UserFeedbackStats summarises one reviewer's verdicts. The agreement rate is the share of
// "correct" verdicts among all of theirs.
func (s *Service) UserFeedbackStats(ctx context.Context, username string) (*UserFeedbackStats, error) {
	return run(ctx, s, "user_feedback_stats", func(db *gorm.DB) (*UserFeedbackStats, error) {
		var rows []struct {
			FeedbackType string
			Count        int64
		}
		err := db.Model(&datastore.PredictionFeedback{}).
			Select("feedback_type, COUNT(*) AS count").
			Where("user = ?", username).
			Group("feedback_type").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		out := &UserFeedbackStats{}
		for _, r := range rows {
			out.TotalFeedback += r.Count
			switch r.FeedbackType {
			case datastore.FeedbackCorrect:
				out.Correct = r.Count
			case datastore.FeedbackIncorrect:
				out.Incorrect = r.Count
			case datastore.FeedbackUncertain:
				out.Uncertain = r.Count
			}
		}
		out.AgreementRate = percent(out.Correct, out.TotalFeedback)
		return out, nil
	})
}

// FeedbackTrend counts feedback submissions per day.
func (s *Service) FeedbackTrend(ctx context.Context, days int) ([]DailyCount, error) {
	days = orDefault(days, DefaultDays)
	return run(ctx, s, "feedback_trend", func(db *gorm.DB) ([]DailyCount, error) {
		var out []DailyCount
		date := s.dateExpr("created_at")
		err := db.Model(&datastore.PredictionFeedback{}).
			Select(date+" AS date, COUNT(*) AS count").
			Where("created_at >= ?", s.cutoff(days)).
			Group(date).
			Order("date ASC").
			Scan(&out).Error
		return out, err
	})
}
