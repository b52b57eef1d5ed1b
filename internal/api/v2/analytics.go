// internal/api/v2/analytics.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/sonoscan/sonoscan/internal/analytics"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// analyticsQuery computes one analytics response for username.
type analyticsQuery func(ctx context.Context, username string, q echo.Context) (any, error)

// OverviewResponse is the admin dashboard headline.
type OverviewResponse struct {
	TotalUsers           int64   `json:"total_users"`
	TotalPredictions     int64   `json:"total_predictions"`
	PredictionsToday     int64   `json:"predictions_today"`
	PredictionsThisWeek  int64   `json:"predictions_this_week"`
	PredictionsThisMonth int64   `json:"predictions_this_month"`
	ActiveUsers          int64   `json:"active_users_7d"`
	NewUsers             int64   `json:"new_users_30d"`
	AverageConfidence    float64 `json:"average_confidence"`
}

// UserSummaryResponse is a user's own dashboard headline.
type UserSummaryResponse struct {
	TotalPredictions  int64                        `json:"total_predictions"`
	AverageConfidence float64                      `json:"average_confidence"`
	Activity          *analytics.ActivityStats     `json:"activity"`
	Feedback          *analytics.UserFeedbackStats `json:"feedback"`
}

// initAnalyticsRoutes registers all analytics-related API endpoints
func (c *Controller) initAnalyticsRoutes() {
	g := c.Group.Group("/analytics", c.requireAuth())

	// the current user's own numbers
	me := g.Group("/me")
	me.GET("/summary", c.analyticsHandler("me_summary", c.userSummary))
	me.GET("/predictions/by-class", c.analyticsHandler("me_by_class", func(ctx context.Context, u string, _ echo.Context) (any, error) {
		return c.Analytics.UserPredictionsByClass(ctx, u)
	}))
	me.GET("/predictions/daily", c.analyticsHandler("me_daily", func(ctx context.Context, u string, q echo.Context) (any, error) {
		days, err := intQuery(q, "days", analytics.DefaultDays, 1, MaxDays)
		if err != nil {
			return nil, err
		}
		return c.Analytics.UserDailyPredictions(ctx, u, days)
	}))
	me.GET("/predictions/recent", c.analyticsHandler("me_recent", func(ctx context.Context, u string, q echo.Context) (any, error) {
		limit, err := intQuery(q, "limit", analytics.DefaultRecentRows, 1, MaxListLimit)
		if err != nil {
			return nil, err
		}
		rows, err := c.Analytics.UserRecentPredictions(ctx, u, limit)
		if err != nil {
			return nil, err
		}
		out := make([]PredictionResponse, 0, len(rows))
		for i := range rows {
			out = append(out, newPredictionResponse(&rows[i]))
		}
		return out, nil
	}))
	me.GET("/confidence/trend", c.analyticsHandler("me_confidence_trend", func(ctx context.Context, u string, q echo.Context) (any, error) {
		days, err := intQuery(q, "days", analytics.DefaultDays, 1, MaxDays)
		if err != nil {
			return nil, err
		}
		return c.Analytics.UserConfidenceTrend(ctx, u, days)
	}))
	me.GET("/feedback", c.analyticsHandler("me_feedback", func(ctx context.Context, u string, q echo.Context) (any, error) {
		limit, err := intQuery(q, "limit", analytics.DefaultFeedbackRows, 1, MaxListLimit)
		if err != nil {
			return nil, err
		}
		return c.Analytics.UserFeedbackHistory(ctx, u, limit)
	}))

	// global numbers, administrators only
	admin := g.Group("", c.requireAdmin())
	admin.GET("/overview", c.analyticsHandler("overview", c.overview))
	admin.GET("/performance", c.analyticsHandler("performance", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.ModelPerformanceSummary(ctx)
	}))
	admin.GET("/predictions/by-class", c.analyticsHandler("by_class", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.PredictionsByClass(ctx)
	}))
	admin.GET("/predictions/daily", c.analyticsHandler("daily", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		days, err := intQuery(q, "days", analytics.DefaultDays, 1, MaxDays)
		if err != nil {
			return nil, err
		}
		return c.Analytics.DailyPredictions(ctx, days)
	}))
	admin.GET("/predictions/hourly", c.analyticsHandler("hourly", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.PredictionsPerHour(ctx)
	}))
	admin.GET("/predictions/recent", c.analyticsHandler("recent", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		limit, err := intQuery(q, "limit", analytics.DefaultRecentRows, 1, MaxListLimit)
		if err != nil {
			return nil, err
		}
		return c.Analytics.RecentPredictions(ctx, limit)
	}))
	admin.GET("/predictions/low-confidence", c.analyticsHandler("low_confidence", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		threshold, err := floatQuery(q, "threshold", analytics.DefaultLowConfidence, 0, 1)
		if err != nil {
			return nil, err
		}
		limit, err := intQuery(q, "limit", analytics.DefaultLowConfidenceRows, 1, MaxListLimit)
		if err != nil {
			return nil, err
		}
		return c.Analytics.LowConfidencePredictions(ctx, threshold, limit)
	}))
	admin.GET("/predictions/class-over-time", c.analyticsHandler("class_over_time", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		days, err := intQuery(q, "days", analytics.DefaultDays, 1, MaxDays)
		if err != nil {
			return nil, err
		}
		return c.Analytics.ClassDistributionOverTime(ctx, days)
	}))
	admin.GET("/confidence/by-class", c.analyticsHandler("confidence_by_class", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.ConfidenceByClass(ctx)
	}))
	admin.GET("/confidence/distribution", c.analyticsHandler("confidence_distribution", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.ConfidenceDistribution(ctx)
	}))
	admin.GET("/users/active", c.analyticsHandler("active_users", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		days, err := intQuery(q, "days", analytics.DefaultActiveDays, 1, MaxDays)
		if err != nil {
			return nil, err
		}
		return c.Analytics.ActiveUsers(ctx, days)
	}))
	admin.GET("/users/top", c.analyticsHandler("top_users", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		limit, err := intQuery(q, "limit", analytics.DefaultTopUsers, 1, MaxListLimit)
		if err != nil {
			return nil, err
		}
		return c.Analytics.MostActiveUsers(ctx, limit)
	}))
	admin.GET("/feedback/stats", c.analyticsHandler("feedback_stats", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.FeedbackStats(ctx)
	}))
	admin.GET("/feedback/accuracy", c.analyticsHandler("feedback_accuracy", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.ModelAccuracyWithFeedback(ctx)
	}))
	admin.GET("/feedback/by-class", c.analyticsHandler("feedback_by_class", func(ctx context.Context, _ string, _ echo.Context) (any, error) {
		return c.Analytics.FeedbackByClass(ctx)
	}))
	admin.GET("/feedback/flagged", c.analyticsHandler("feedback_flagged", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		limit, err := intQuery(q, "limit", analytics.DefaultFlaggedRows, 1, MaxListLimit)
		if err != nil {
			return nil, err
		}
		return c.Analytics.FlaggedPredictions(ctx, limit)
	}))
	admin.GET("/feedback/trend", c.analyticsHandler("feedback_trend", func(ctx context.Context, _ string, q echo.Context) (any, error) {
		days, err := intQuery(q, "days", analytics.DefaultDays, 1, MaxDays)
		if err != nil {
			return nil, err
		}
		return c.Analytics.FeedbackTrend(ctx, days)
	}))
}

// analyticsHandler serves fn through the response cache. Entries are keyed by the
// endpoint, the user and the raw query string.
func (c *Controller) analyticsHandler(name string, fn analyticsQuery) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		username := currentUser(ctx)
		key := name + "|" + username + "|" + ctx.Request().URL.RawQuery

		if v, found := c.analyticsCache.Get(key); found {
			c.datastoreMetrics().RecordCacheOperation("analytics", metrics.LabelHit)
			return ctx.JSON(http.StatusOK, v)
		}
		c.datastoreMetrics().RecordCacheOperation("analytics", metrics.LabelMiss)

		v, err := fn(ctx.Request().Context(), username, ctx)
		if err != nil {
			return c.HandleServiceError(ctx, err, "Failed to compute "+name)
		}
		c.analyticsCache.Set(key, v, cache.DefaultExpiration)
		return ctx.JSON(http.StatusOK, v)
	}
}

func (c *Controller) overview(ctx context.Context, _ string, _ echo.Context) (any, error) {
	var (
		out OverviewResponse
		err error
	)
	counts := []struct {
		dst *int64
		fn  func(context.Context) (int64, error)
	}{
		{&out.TotalUsers, c.Analytics.TotalUsers},
		{&out.TotalPredictions, c.Analytics.TotalPredictions},
		{&out.PredictionsToday, c.Analytics.PredictionsToday},
		{&out.PredictionsThisWeek, c.Analytics.PredictionsThisWeek},
		{&out.PredictionsThisMonth, c.Analytics.PredictionsThisMonth},
		{&out.ActiveUsers, func(ctx context.Context) (int64, error) {
			return c.Analytics.ActiveUsersCount(ctx, analytics.DefaultActiveDays)
		}},
		{&out.NewUsers, func(ctx context.Context) (int64, error) {
			return c.Analytics.NewUsersCount(ctx, analytics.DefaultDays)
		}},
	}
	for _, q := range counts {
		if *q.dst, err = q.fn(ctx); err != nil {
			return nil, err
		}
	}
	if out.AverageConfidence, err = c.Analytics.AverageConfidence(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Controller) userSummary(ctx context.Context, username string, _ echo.Context) (any, error) {
	var (
		out UserSummaryResponse
		err error
	)
	if out.TotalPredictions, err = c.Analytics.UserTotalPredictions(ctx, username); err != nil {
		return nil, err
	}
	if out.AverageConfidence, err = c.Analytics.UserAverageConfidence(ctx, username); err != nil {
		return nil, err
	}
	if out.Activity, err = c.Analytics.UserActivityStats(ctx, username); err != nil {
		return nil, err
	}
	if out.Feedback, err = c.Analytics.UserFeedbackStats(ctx, username); err != nil {
		return nil, err
	}
	return out, nil
}

// cacheAge is how long analytics responses stay cached.
func (c *Controller) cacheAge() time.Duration {
	if c.Settings.WebServer.CacheTTL > 0 {
		return c.Settings.WebServer.CacheTTL
	}
	return DefaultAnalyticsCacheTTL
}
