package analytics

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/datastore"
)

// TotalUsers counts registered accounts.
func (s *Service) TotalUsers(ctx context.Context) (int64, error) {
	return run(ctx, s, "total_users", func(db *gorm.DB) (int64, error) {
		var n int64
		err := db.Model(&datastore.User{}).Count(&n).Error
		return n, err
	})
}

// TotalPredictions counts every logged prediction.
func (s *Service) TotalPredictions(ctx context.Context) (int64, error) {
	return run(ctx, s, "total_predictions", func(db *gorm.DB) (int64, error) {
		var n int64
		err := db.Model(&datastore.Prediction{}).Count(&n).Error
		return n, err
	})
}

// PredictionsByClass counts predictions per label, most frequent first.
func (s *Service) PredictionsByClass(ctx context.Context) ([]LabelCount, error) {
	return run(ctx, s, "predictions_by_class", func(db *gorm.DB) ([]LabelCount, error) {
		var out []LabelCount
		err := db.Model(&datastore.Prediction{}).
			Select("predicted_label AS label, COUNT(*) AS count").
			Group("predicted_label").
			Order("count DESC, label ASC").
			Scan(&out).Error
		return out, err
	})
}

// ClassDistribution is PredictionsByClass under the dashboard's name.
func (s *Service) ClassDistribution(ctx context.Context) ([]LabelCount, error) {
	return s.PredictionsByClass(ctx)
}

// DailyPredictions counts predictions per day over the last days days, oldest first.
func (s *Service) DailyPredictions(ctx context.Context, days int) ([]DailyCount, error) {
	days = orDefault(days, DefaultDays)
	return run(ctx, s, "daily_predictions", func(db *gorm.DB) ([]DailyCount, error) {
		var out []DailyCount
		date := s.dateExpr("created_at")
		err := db.Model(&datastore.Prediction{}).
			Select(date+" AS date, COUNT(*) AS count").
			Where("created_at >= ?", s.cutoff(days)).
			Group(date).
			Order("date ASC").
			Scan(&out).Error
		return out, err
	})
}

// AverageConfidence is the mean confidence over all predictions, 0 when there are none.
func (s *Service) AverageConfidence(ctx context.Context) (float64, error) {
	return run(ctx, s, "average_confidence", func(db *gorm.DB) (float64, error) {
		var avg sql.NullFloat64
		err := db.Model(&datastore.Prediction{}).Select("AVG(confidence)").Scan(&avg).Error
		return avg.Float64, err
	})
}

// ConfidenceByClass is the mean confidence per label.
func (s *Service) ConfidenceByClass(ctx context.Context) ([]LabelAverage, error) {
	return run(ctx, s, "confidence_by_class", func(db *gorm.DB) ([]LabelAverage, error) {
		var out []LabelAverage
		err := db.Model(&datastore.Prediction{}).
			Select("predicted_label AS label, AVG(confidence) AS average").
			Group("predicted_label").
			Order("label ASC").
			Scan(&out).Error
		return out, err
	})
}

// LowConfidencePredictions lists predictions below threshold, least confident first.
// Each carries the type of its newest feedback row, or nil when it has none.
func (s *Service) LowConfidencePredictions(ctx context.Context, threshold float64, limit int) ([]LowConfidencePrediction, error) {
	if threshold <= 0 {
		threshold = DefaultLowConfidence
	}
	limit = orDefault(limit, DefaultLowConfidenceRows)
	return run(ctx, s, "low_confidence_predictions", func(db *gorm.DB) ([]LowConfidencePrediction, error) {
		var out []LowConfidencePrediction
		err := db.Raw(`
			SELECT p.id, p.filename, p.predicted_label, p.confidence, p.user, p.created_at,
				(SELECT f.feedback_type FROM prediction_feedback f
				 WHERE f.prediction_id = p.id
				 ORDER BY f.created_at DESC, f.id DESC LIMIT 1) AS feedback_type
			FROM predictions p
			WHERE p.confidence < ?
			ORDER BY p.confidence ASC, p.created_at DESC
			LIMIT ?`, threshold, limit).
			Scan(&out).Error
		return out, err
	})
}

// ActiveUsers ranks users by predictions in the last days days, top 10.
func (s *Service) ActiveUsers(ctx context.Context, days int) ([]UserCount, error) {
	days = orDefault(days, DefaultActiveDays)
	return run(ctx, s, "active_users", func(db *gorm.DB) ([]UserCount, error) {
		var out []UserCount
		err := db.Model(&datastore.Prediction{}).
			Select("user, COUNT(*) AS count").
			Where("created_at >= ? AND user IS NOT NULL", s.cutoff(days)).
			Group("user").
			Order("count DESC, user ASC").
			Limit(DefaultTopUsers).
			Scan(&out).Error
		return out, err
	})
}

// MostActiveUsers ranks users by all-time prediction count.
func (s *Service) MostActiveUsers(ctx context.Context, limit int) ([]UserCount, error) {
	limit = orDefault(limit, DefaultTopUsers)
	return run(ctx, s, "most_active_users", func(db *gorm.DB) ([]UserCount, error) {
		var out []UserCount
		err := db.Model(&datastore.Prediction{}).
			Select("user, COUNT(*) AS count").
			Where("user IS NOT NULL").
			Group("user").
			Order("count DESC, user ASC").
			Limit(limit).
			Scan(&out).Error
		return out, err
	})
}

// PredictionsPerHour counts predictions by UTC hour of day.
func (s *Service) PredictionsPerHour(ctx context.Context) ([]HourCount, error) {
	return run(ctx, s, "predictions_per_hour", func(db *gorm.DB) ([]HourCount, error) {
		var out []HourCount
		hour := s.hourExpr("created_at")
		err := db.Model(&datastore.Prediction{}).
			Select(hour + " AS hour, COUNT(*) AS count").
			Group(hour).
			Order("hour ASC").
			Scan(&out).Error
		return out, err
	})
}

// RecentPredictionsFull returns the newest predictions with every stored field.
func (s *Service) RecentPredictionsFull(ctx context.Context, limit int) ([]datastore.Prediction, error) {
	limit = orDefault(limit, DefaultRecentFullRows)
	return run(ctx, s, "recent_predictions_full", func(db *gorm.DB) ([]datastore.Prediction, error) {
		var out []datastore.Prediction
		err := db.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
		return out, err
	})
}

// RecentPredictions returns the short listing of the newest predictions.
func (s *Service) RecentPredictions(ctx context.Context, limit int) ([]RecentPrediction, error) {
	limit = orDefault(limit, DefaultRecentRows)
	return run(ctx, s, "recent_predictions", func(db *gorm.DB) ([]RecentPrediction, error) {
		var out []RecentPrediction
		err := db.Model(&datastore.Prediction{}).
			Select("id, filename, predicted_label, confidence, user, created_at").
			Order("created_at DESC, id DESC").
			Limit(limit).
			Scan(&out).Error
		return out, err
	})
}

// ClassDistributionOverTime returns the daily count series of every label.
func (s *Service) ClassDistributionOverTime(ctx context.Context, days int) (map[string][]DailyCount, error) {
	days = orDefault(days, DefaultDays)
	return run(ctx, s, "class_distribution_over_time", func(db *gorm.DB) (map[string][]DailyCount, error) {
		var rows []struct {
			Label string
			Date  string
			Count int64
		}
		date := s.dateExpr("created_at")
		err := db.Model(&datastore.Prediction{}).
			Select("predicted_label AS label, "+date+" AS date, COUNT(*) AS count").
			Where("created_at >= ?", s.cutoff(days)).
			Group("predicted_label, " + date).
			Order("date ASC, label ASC").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		out := make(map[string][]DailyCount)
		for _, r := range rows {
			out[r.Label] = append(out[r.Label], DailyCount{Date: r.Date, Count: r.Count})
		}
		return out, nil
	})
}

// ModelPerformanceSummary aggregates confidence, class counts and timing.
func (s *Service) ModelPerformanceSummary(ctx context.Context) (*PerformanceSummary, error) {
	return run(ctx, s, "model_performance_summary", func(db *gorm.DB) (*PerformanceSummary, error) {
		var agg struct {
			Total   int64
			AvgConf *float64
			MinConf *float64
			MaxConf *float64
		}
		err := db.Model(&datastore.Prediction{}).
			Select("COUNT(*) AS total, AVG(confidence) AS avg_conf, MIN(confidence) AS min_conf, MAX(confidence) AS max_conf").
			Scan(&agg).Error
		if err != nil {
			return nil, err
		}

		var classes []LabelCount
		err = db.Model(&datastore.Prediction{}).
			Select("predicted_label AS label, COUNT(*) AS count").
			Group("predicted_label").
			Scan(&classes).Error
		if err != nil {
			return nil, err
		}

		var avgTime sql.NullFloat64
		err = db.Model(&datastore.Prediction{}).
			Where("processing_time_ms IS NOT NULL").
			Select("AVG(processing_time_ms)").
			Scan(&avgTime).Error
		if err != nil {
			return nil, err
		}

		out := &PerformanceSummary{
			TotalPredictions:        agg.Total,
			AverageConfidence:       deref(agg.AvgConf),
			MinConfidence:           deref(agg.MinConf),
			MaxConfidence:           deref(agg.MaxConf),
			ClassDistribution:       make(map[string]int64, len(classes)),
			AverageProcessingTimeMs: avgTime.Float64,
		}
		for _, c := range classes {
			out.ClassDistribution[c.Label] = c.Count
		}
		return out, nil
	})
}

// ActiveUsersCount counts distinct users with a prediction in the last days days.
func (s *Service) ActiveUsersCount(ctx context.Context, days int) (int64, error) {
	days = orDefault(days, DefaultActiveDays)
	return run(ctx, s, "active_users_count", func(db *gorm.DB) (int64, error) {
		var n int64
		err := db.Model(&datastore.Prediction{}).
			Select("COUNT(DISTINCT user)").
			Where("created_at >= ?", s.cutoff(days)).
			Scan(&n).Error
		return n, err
	})
}

// NewUsersCount counts accounts created in the last days days.
func (s *Service) NewUsersCount(ctx context.Context, days int) (int64, error) {
	days = orDefault(days, DefaultDays)
	return run(ctx, s, "new_users_count", func(db *gorm.DB) (int64, error) {
		var n int64
		err := db.Model(&datastore.User{}).Where("created_at >= ?", s.cutoff(days)).Count(&n).Error
		return n, err
	})
}

// PredictionsToday counts predictions on the current UTC day.
func (s *Service) PredictionsToday(ctx context.Context) (int64, error) {
	today := s.now().Format("2006-01-02")
	return run(ctx, s, "predictions_today", func(db *gorm.DB) (int64, error) {
		var n int64
		err := db.Model(&datastore.Prediction{}).
			Where(s.dateExpr("created_at")+" = ?", today).
			Count(&n).Error
		return n, err
	})
}

// PredictionsThisWeek sums the daily counts of the last 7 days.
func (s *Service) PredictionsThisWeek(ctx context.Context) (int64, error) {
	return s.sumDaily(ctx, 7)
}

// PredictionsThisMonth sums the daily counts of the last 30 days.
func (s *Service) PredictionsThisMonth(ctx context.Context) (int64, error) {
	return s.sumDaily(ctx, 30)
}

func (s *Service) sumDaily(ctx context.Context, days int) (int64, error) {
	daily, err := s.DailyPredictions(ctx, days)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, d := range daily {
		total += d.Count
	}
	return total, nil
}

// ConfidenceBuckets are the fixed ranges ConfidenceDistribution reports, in order.
var ConfidenceBuckets = []string{"0-50%", "50-70%", "70-80%", "80-90%", "90-100%"}

// ConfidenceDistribution counts predictions per confidence bucket. Empty buckets are
// left out.
func (s *Service) ConfidenceDistribution(ctx context.Context) ([]ConfidenceBucket, error) {
	return run(ctx, s, "confidence_distribution", func(db *gorm.DB) ([]ConfidenceBucket, error) {
		rows, err := db.Raw(`
			SELECT CASE
					WHEN confidence < 0.5 THEN '0-50%'
					WHEN confidence < 0.7 THEN '50-70%'
					WHEN confidence < 0.8 THEN '70-80%'
					WHEN confidence < 0.9 THEN '80-90%'
					ELSE '90-100%'
				END AS bucket,
				COUNT(*) AS count
			FROM predictions
			WHERE confidence IS NOT NULL
			GROUP BY bucket
			ORDER BY bucket`).
			Rows()
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []ConfidenceBucket
		for rows.Next() {
			var b ConfidenceBucket
			if err := rows.Scan(&b.Range, &b.Count); err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		return out, rows.Err()
	})
}
