package analytics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *clock) Set(t time.Time)         { c.now = t }

type fixture struct {
	store *datastore.SQLiteStore
	svc   *Service
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = datastore.MemoryPath

	c := &clock{now: baseTime}
	store := &datastore.SQLiteStore{Settings: settings}
	store.Now = c.Now
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store.DB())
	svc.Now = c.Now
	return &fixture{store: store, svc: svc, clock: c}
}

func (f *fixture) predict(t *testing.T, label string, confidence float64, user string) uint {
	t.Helper()
	id, err := f.store.LogPrediction(context.Background(), datastore.PredictionInput{
		Filename:       label + ".png",
		PredictedLabel: label,
		Confidence:     confidence,
		User:           user,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) feedback(t *testing.T, id uint, kind, actual string) {
	t.Helper()
	_, err := f.store.SubmitPredictionFeedback(context.Background(), datastore.FeedbackInput{
		PredictionID: id,
		FeedbackType: kind,
		ActualLabel:  actual,
		User:         "drbob",
	})
	require.NoError(t, err)
}

func TestEmptyDatabaseYieldsZeroValues(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	users, err := f.svc.TotalUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, users)

	total, err := f.svc.TotalPredictions(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)

	avg, err := f.svc.AverageConfidence(ctx)
	require.NoError(t, err)
	assert.Zero(t, avg)

	buckets, err := f.svc.ConfidenceDistribution(ctx)
	require.NoError(t, err)
	assert.Empty(t, buckets)

	summary, err := f.svc.ModelPerformanceSummary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalPredictions)
	assert.Empty(t, summary.ClassDistribution)
	assert.Zero(t, summary.AverageProcessingTimeMs)

	acc, err := f.svc.ModelAccuracyWithFeedback(ctx)
	require.NoError(t, err)
	assert.Equal(t, &AccuracySummary{}, acc)

	stats, err := f.svc.UserActivityStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, stats.ActivityCounts)
	assert.Nil(t, stats.FirstActivity)
	assert.Nil(t, stats.RegisteredAt)

	today, err := f.svc.PredictionsToday(ctx)
	require.NoError(t, err)
	assert.Zero(t, today)
}

func TestConfidenceDistributionOnePerBucket(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, c := range []float64{0.3, 0.55, 0.75, 0.85, 0.95} {
		f.predict(t, "Benign", c, "alice")
	}

	got, err := f.svc.ConfidenceDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, got, len(ConfidenceBuckets))
	for i, b := range got {
		assert.Equal(t, ConfidenceBuckets[i], b.Range)
		assert.Equal(t, int64(1), b.Count, b.Range)
	}
}

func TestDailyWindows(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Set(baseTime.AddDate(0, 0, -40))
	f.predict(t, "Normal", 0.9, "alice")
	f.clock.Set(baseTime.AddDate(0, 0, -4))
	f.predict(t, "Benign", 0.8, "alice")
	f.clock.Set(baseTime)
	f.predict(t, "Malignant", 0.7, "bob")
	f.predict(t, "Benign", 0.6, "bob")

	daily, err := f.svc.DailyPredictions(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, []DailyCount{
		{Date: "2026-03-10", Count: 1},
		{Date: "2026-03-14", Count: 2},
	}, daily)

	today, err := f.svc.PredictionsToday(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), today)

	week, err := f.svc.PredictionsThisWeek(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), week)

	month, err := f.svc.PredictionsThisMonth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), month)

	total, err := f.svc.TotalPredictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	active, err := f.svc.ActiveUsers(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []UserCount{{User: "bob", Count: 2}, {User: "alice", Count: 1}}, active)

	series, err := f.svc.ClassDistributionOverTime(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, []DailyCount{{Date: "2026-03-10", Count: 1}, {Date: "2026-03-14", Count: 1}}, series["Benign"])
	assert.NotContains(t, series, "Normal")

	hours, err := f.svc.PredictionsPerHour(ctx)
	require.NoError(t, err)
	assert.Equal(t, []HourCount{{Hour: 9, Count: 4}}, hours)
}

func TestPredictionsByClassAndConfidence(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.predict(t, "Benign", 0.8, "alice")
	f.predict(t, "Benign", 0.6, "alice")
	f.predict(t, "Malignant", 0.9, "")

	byClass, err := f.svc.PredictionsByClass(ctx)
	require.NoError(t, err)
	assert.Equal(t, []LabelCount{{Label: "Benign", Count: 2}, {Label: "Malignant", Count: 1}}, byClass)

	avg, err := f.svc.ConfidenceByClass(ctx)
	require.NoError(t, err)
	require.Len(t, avg, 2)
	assert.InDelta(t, 0.7, avg[0].Average, 1e-9)

	most, err := f.svc.MostActiveUsers(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []UserCount{{User: "alice", Count: 2}}, most)

	summary, err := f.svc.ModelPerformanceSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.TotalPredictions)
	assert.InDelta(t, 0.6, summary.MinConfidence, 1e-9)
	assert.InDelta(t, 0.9, summary.MaxConfidence, 1e-9)
	assert.Equal(t, map[string]int64{"Benign": 2, "Malignant": 1}, summary.ClassDistribution)

	recent, err := f.svc.RecentPredictions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint(3), recent[0].ID)
	assert.Nil(t, recent[0].User)

	userAvg, err := f.svc.UserAverageConfidence(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, userAvg, 1e-9)
}

func TestFeedbackAnalytics(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.predict(t, "Malignant", 0.62, "alice")
	p2 := f.predict(t, "Benign", 0.91, "alice")
	p3 := f.predict(t, "Normal", 0.40, "bob")

	f.feedback(t, p1, datastore.FeedbackIncorrect, "Benign")
	f.clock.Advance(time.Minute)
	f.feedback(t, p2, datastore.FeedbackCorrect, "")
	f.clock.Advance(time.Minute)
	f.feedback(t, p3, datastore.FeedbackUncertain, "")

	acc, err := f.svc.ModelAccuracyWithFeedback(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acc.TotalReviewed)
	assert.Equal(t, int64(1), acc.CorrectCount)
	assert.Equal(t, int64(1), acc.IncorrectCount)
	assert.Equal(t, int64(1), acc.UncertainCount)
	assert.InDelta(t, 50.0, acc.Accuracy, 1e-9)

	flagged, err := f.svc.FlaggedPredictions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, p3, flagged[0].ID)
	assert.Equal(t, p1, flagged[1].ID)
	assert.Equal(t, datastore.FeedbackIncorrect, flagged[1].FeedbackType)
	require.NotNil(t, flagged[1].ActualLabel)
	assert.Equal(t, "Benign", *flagged[1].ActualLabel)
	assert.Equal(t, "Malignant", flagged[1].PredictedLabel)

	byClass, err := f.svc.FeedbackByClass(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ClassFeedback{
		{Class: "Benign", Correct: 1, Total: 1, Accuracy: 100},
		{Class: "Malignant", Incorrect: 1, Total: 1, Accuracy: 0},
	}, byClass)

	stats, err := f.svc.FeedbackStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.ByType[datastore.FeedbackUncertain])

	mine, err := f.svc.UserFeedbackStats(ctx, "drbob")
	require.NoError(t, err)
	assert.Equal(t, int64(3), mine.TotalFeedback)
	assert.InDelta(t, 100.0/3, mine.AgreementRate, 1e-9)

	history, err := f.svc.UserFeedbackHistory(ctx, "drbob", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, p3, history[0].PredictionID)
	assert.Equal(t, "Normal", history[0].PredictedLabel)

	trend, err := f.svc.FeedbackTrend(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []DailyCount{{Date: "2026-03-14", Count: 3}}, trend)
}

func TestLowConfidenceUsesLatestFeedback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p1 := f.predict(t, "Malignant", 0.62, "alice")
	f.predict(t, "Benign", 0.95, "alice")
	p3 := f.predict(t, "Normal", 0.41, "alice")

	f.feedback(t, p1, datastore.FeedbackIncorrect, "Benign")
	f.clock.Advance(time.Hour)
	f.feedback(t, p1, datastore.FeedbackCorrect, "")

	got, err := f.svc.LowConfidencePredictions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, p3, got[0].ID)
	assert.Nil(t, got[0].FeedbackType)

	assert.Equal(t, p1, got[1].ID)
	require.NotNil(t, got[1].FeedbackType)
	assert.Equal(t, datastore.FeedbackCorrect, *got[1].FeedbackType)
}

func TestUserActivityStats(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateUser(ctx, "alice", []byte("hash"))
	require.NoError(t, err)
	for _, kind := range []string{datastore.ActivityLogin, datastore.ActivityPrediction, datastore.ActivityReportDownload, datastore.ActivityLogin} {
		require.NoError(t, f.store.LogUserActivity(ctx, "alice", kind))
		f.clock.Advance(time.Hour)
	}
	require.NoError(t, f.store.LogUserActivity(ctx, "bob", datastore.ActivityLogin))

	stats, err := f.svc.UserActivityStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalLogins)
	assert.Equal(t, int64(1), stats.TotalPredictions)
	assert.Equal(t, int64(1), stats.TotalReportDownloads)
	require.NotNil(t, stats.FirstActivity)
	require.NotNil(t, stats.LastActivity)
	require.NotNil(t, stats.RegisteredAt)
	assert.True(t, stats.FirstActivity.Equal(baseTime))
	assert.True(t, stats.LastActivity.Equal(baseTime.Add(3*time.Hour)))
	assert.True(t, stats.RegisteredAt.Equal(baseTime))

	newUsers, err := f.svc.NewUsersCount(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), newUsers)
}

func TestQueriesAreCounted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reg := prometheus.NewRegistry()
	m, err := metrics.NewDatastoreMetrics(reg)
	require.NoError(t, err)
	f.svc.Metrics = m

	_, err = f.svc.TotalUsers(context.Background())
	require.NoError(t, err)
	_, err = f.svc.TotalUsers(context.Background())
	require.NoError(t, err)

	expected := `
# HELP datastore_analytics_operations_total Total number of analytics operations
# TYPE datastore_analytics_operations_total counter
datastore_analytics_operations_total{analytics_type="total_users",status="success"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "datastore_analytics_operations_total"))
}
