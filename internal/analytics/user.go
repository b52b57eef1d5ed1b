package analytics

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
)

// UserTotalPredictions counts the predictions one user made.
func (s *Service) UserTotalPredictions(ctx context.Context, username string) (int64, error) {
	return run(ctx, s, "user_total_predictions", func(db *gorm.DB) (int64, error) {
		var n int64
		err := db.Model(&datastore.Prediction{}).Where("user = ?", username).Count(&n).Error
		return n, err
	})
}

// UserPredictionsByClass counts one user's predictions per label.
func (s *Service) UserPredictionsByClass(ctx context.Context, username string) ([]LabelCount, error) {
	return run(ctx, s, "user_predictions_by_class", func(db *gorm.DB) ([]LabelCount, error) {
		var out []LabelCount
		err := db.Model(&datastore.Prediction{}).
			Select("predicted_label AS label, COUNT(*) AS count").
			Where("user = ?", username).
			Group("predicted_label").
			Order("count DESC, label ASC").
			Scan(&out).Error
		return out, err
	})
}

// UserDailyPredictions counts one user's predictions per day.
func (s *Service) UserDailyPredictions(ctx context.Context, username string, days int) ([]DailyCount, error) {
	days = orDefault(days, DefaultDays)
	return run(ctx, s, "user_daily_predictions", func(db *gorm.DB) ([]DailyCount, error) {
		var out []DailyCount
		date := s.dateExpr("created_at")
		err := db.Model(&datastore.Prediction{}).
			Select(date+" AS date, COUNT(*) AS count").
			Where("user = ? AND created_at >= ?", username, s.cutoff(days)).
			Group(date).
			Order("date ASC").
			Scan(&out).Error
		return out, err
	})
}

// UserAverageConfidence is the mean confidence of one user's predictions.
func (s *Service) UserAverageConfidence(ctx context.Context, username string) (float64, error) {
	return run(ctx, s, "user_average_confidence", func(db *gorm.DB) (float64, error) {
		var avg sql.NullFloat64
		err := db.Model(&datastore.Prediction{}).
			Select("AVG(confidence)").
			Where("user = ?", username).
			Scan(&avg).Error
		return avg.Float64, err
	})
}

// UserRecentPredictions returns one user's newest predictions with every stored field.
func (s *Service) UserRecentPredictions(ctx context.Context, username string, limit int) ([]datastore.Prediction, error) {
	limit = orDefault(limit, DefaultRecentFullRows)
	return run(ctx, s, "user_recent_predictions", func(db *gorm.DB) ([]datastore.Prediction, error) {
		var out []datastore.Prediction
		err := db.Where("user = ?", username).
			Order("created_at DESC, id DESC").
			Limit(limit).
			Find(&out).Error
		return out, err
	})
}

// UserActivityStats summarises one user's audit trail and registration.
func (s *Service) UserActivityStats(ctx context.Context, username string) (*ActivityStats, error) {
	return run(ctx, s, "user_activity_stats", func(db *gorm.DB) (*ActivityStats, error) {
		var counts []struct {
			ActivityType string
			Count        int64
		}
		err := db.Model(&datastore.UserActivity{}).
			Select("activity_type, COUNT(*) AS count").
			Where("username = ?", username).
			Group("activity_type").
			Scan(&counts).Error
		if err != nil {
			return nil, err
		}

		out := &ActivityStats{ActivityCounts: make(map[string]int64, len(counts))}
		for _, c := range counts {
			out.ActivityCounts[c.ActivityType] = c.Count
		}
		out.TotalLogins = out.ActivityCounts[datastore.ActivityLogin]
		out.TotalPredictions = out.ActivityCounts[datastore.ActivityPrediction]
		out.TotalReportDownloads = out.ActivityCounts[datastore.ActivityReportDownload]

		if out.FirstActivity, err = activityAt(db, username, "created_at ASC, id ASC"); err != nil {
			return nil, err
		}
		if out.LastActivity, err = activityAt(db, username, "created_at DESC, id DESC"); err != nil {
			return nil, err
		}

		var u datastore.User
		err = db.Where("username = ?", username).Take(&u).Error
		switch {
		case err == nil:
			out.RegisteredAt = &u.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
		return out, nil
	})
}

// activityAt returns the timestamp of the first activity row in order, nil when there is none.
func activityAt(db *gorm.DB, username, order string) (*time.Time, error) {
	var a datastore.UserActivity
	err := db.Where("username = ?", username).Order(order).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a.CreatedAt, nil
}

// UserConfidenceTrend is one user's mean confidence per day.
func (s *Service) UserConfidenceTrend(ctx context.Context, username string, days int) ([]DailyAverage, error) {
	days = orDefault(days, DefaultDays)
	return run(ctx, s, "user_confidence_trend", func(db *gorm.DB) ([]DailyAverage, error) {
		var out []DailyAverage
		date := s.dateExpr("created_at")
		err := db.Model(&datastore.Prediction{}).
			Select(date+" AS date, AVG(confidence) AS average").
			Where("user = ? AND created_at >= ?", username, s.cutoff(days)).
			Group(date).
			Order("date ASC").
			Scan(&out).Error
		return out, err
	})
}
