package analytics

import "time"

// DailyCount is the number of rows on one UTC day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// DailyAverage is a mean value on one UTC day.
type DailyAverage struct {
	Date    string  `json:"date"`
	Average float64 `json:"average"`
}

// LabelCount is a per-class count.
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// LabelAverage is a per-class mean confidence.
type LabelAverage struct {
	Label   string  `json:"label"`
	Average float64 `json:"average"`
}

// UserCount is a per-user prediction count.
type UserCount struct {
	User  string `json:"user"`
	Count int64  `json:"count"`
}

// HourCount is the number of predictions in one hour of the day (0-23, UTC).
type HourCount struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// ConfidenceBucket is one fixed confidence range.
type ConfidenceBucket struct {
	Range string `json:"range"`
	Count int64  `json:"count"`
}

// RecentPrediction is the short system-wide listing row.
type RecentPrediction struct {
	ID             uint      `json:"id"`
	Filename       string    `json:"filename"`
	PredictedLabel string    `json:"predicted_label"`
	Confidence     float64   `json:"confidence"`
	User           *string   `json:"user"`
	CreatedAt      time.Time `json:"created_at"`
}

// LowConfidencePrediction is a review candidate with its current feedback verdict, if any.
type LowConfidencePrediction struct {
	RecentPrediction
	FeedbackType *string `json:"feedback_type"`
}

// PerformanceSummary aggregates every prediction.
type PerformanceSummary struct {
	TotalPredictions        int64            `json:"total_predictions"`
	AverageConfidence       float64          `json:"average_confidence"`
	MinConfidence           float64          `json:"min_confidence"`
	MaxConfidence           float64          `json:"max_confidence"`
	ClassDistribution       map[string]int64 `json:"class_distribution"`
	AverageProcessingTimeMs float64          `json:"average_processing_time_ms"`
}

// ActivityStats summarises one user's audit trail.
type ActivityStats struct {
	ActivityCounts       map[string]int64 `json:"activity_counts"`
	FirstActivity        *time.Time       `json:"first_activity"`
	LastActivity         *time.Time       `json:"last_activity"`
	RegisteredAt         *time.Time       `json:"registered_at"`
	TotalLogins          int64            `json:"total_logins"`
	TotalPredictions     int64            `json:"total_predictions"`
	TotalReportDownloads int64            `json:"total_report_downloads"`
}

// FeedbackStats counts feedback rows by verdict.
type FeedbackStats struct {
	ByType map[string]int64 `json:"by_type"`
	Total  int64            `json:"total"`
}

// AccuracySummary is model accuracy over predictions reviewed as correct or incorrect.
// Uncertain reviews are reported but excluded from the accuracy.
type AccuracySummary struct {
	TotalReviewed  int64   `json:"total_reviewed"`
	CorrectCount   int64   `json:"correct_count"`
	IncorrectCount int64   `json:"incorrect_count"`
	UncertainCount int64   `json:"uncertain_count"`
	Accuracy       float64 `json:"accuracy"`
	SampleSize     int64   `json:"sample_size"`
}

// ClassFeedback is the reviewed accuracy of one predicted class.
type ClassFeedback struct {
	Class     string  `json:"class"`
	Correct   int64   `json:"correct"`
	Incorrect int64   `json:"incorrect"`
	Total     int64   `json:"total"`
	Accuracy  float64 `json:"accuracy"`
}

// FlaggedPrediction is a prediction a reviewer marked incorrect or uncertain.
type FlaggedPrediction struct {
	RecentPrediction
	FeedbackType string    `json:"feedback_type"`
	ActualLabel  *string   `json:"actual_label"`
	Notes        *string   `json:"notes"`
	FeedbackDate time.Time `json:"feedback_date"`
}

// FeedbackHistoryEntry is one feedback row joined with its prediction.
type FeedbackHistoryEntry struct {
	ID             uint      `json:"id"`
	PredictionID   uint      `json:"prediction_id"`
	FeedbackType   string    `json:"feedback_type"`
	ActualLabel    *string   `json:"actual_label"`
	Notes          *string   `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	Filename       string    `json:"filename"`
	PredictedLabel string    `json:"predicted_label"`
	Confidence     float64   `json:"confidence"`
}

// UserFeedbackStats summarises the feedback one reviewer submitted.
type UserFeedbackStats struct {
	TotalFeedback int64   `json:"total_feedback"`
	Correct       int64   `json:"correct"`
	Incorrect     int64   `json:"incorrect"`
	Uncertain     int64   `json:"uncertain"`
	AgreementRate float64 `json:"agreement_rate"`
}
