package datastore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Feedback types accepted by SubmitPredictionFeedback.
const (
	FeedbackCorrect   = "correct"
	FeedbackIncorrect = "incorrect"
	FeedbackUncertain = "uncertain"
)

// Activity types written to user_activity.
const (
	ActivityLogin          = "login"
	ActivityLogout         = "logout"
	ActivityRegister       = "register"
	ActivityPrediction     = "prediction"
	ActivityFeedback       = "feedback"
	ActivityReportDownload = "report_download"
)

// User is an account that can log in.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash []byte    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

// Prediction is one classified image. Pointer fields are optional metadata that older
// rows may not carry.
type Prediction struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Filename         string         `gorm:"size:255;not null" json:"filename"`
	PredictedLabel   string         `gorm:"size:64;not null;index" json:"predicted_label"`
	Confidence       float64        `gorm:"not null" json:"confidence"`
	User             *string        `gorm:"size:64;index" json:"user,omitempty"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`
	ModelVersion     *string        `gorm:"size:32" json:"model_version,omitempty"`
	ReportPath       *string        `gorm:"size:512" json:"report_path,omitempty"`
	Probabilities    datatypes.JSON `json:"probabilities,omitempty"`
	PatientID        *string        `gorm:"size:64" json:"patient_id,omitempty"`
	ConfidenceScore  *float64       `json:"confidence_score,omitempty"`
	ProcessingTimeMs *float64       `json:"processing_time_ms,omitempty"`
}

func (Prediction) TableName() string { return "predictions" }

// UserActivity is an audit row: who did what, when.
type UserActivity struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;index" json:"username"`
	ActivityType string    `gorm:"size:32;not null;index" json:"activity_type"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (UserActivity) TableName() string { return "user_activity" }

// PredictionFeedback is a reviewer's verdict on a prediction. A prediction can collect
// several rows; the newest one is current.
type PredictionFeedback struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PredictionID uint      `gorm:"not null;index" json:"prediction_id"`
	FeedbackType string    `gorm:"size:16;not null;index" json:"feedback_type"`
	ActualLabel  *string   `gorm:"size:64" json:"actual_label,omitempty"`
	Notes        *string   `gorm:"type:text" json:"notes,omitempty"`
	User         *string   `gorm:"size:64;index" json:"user,omitempty"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (PredictionFeedback) TableName() string { return "prediction_feedback" }

// SchemaVersion records an applied migration.
type SchemaVersion struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false" json:"version"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	AppliedAt time.Time `json:"applied_at"`
}

func (SchemaVersion) TableName() string { return "schema_versions" }

// PredictionInput carries the fields of a new prediction row. Empty strings, a nil map
// and a nil ProcessingTimeMs mean "not provided" and the column is left out of the insert.
type PredictionInput struct {
	Filename         string
	PredictedLabel   string
	Confidence       float64
	User             string
	ModelVersion     string
	Probabilities    map[string]float64
	PatientID        string
	ProcessingTimeMs *float64
}

// FeedbackInput carries one feedback submission.
type FeedbackInput struct {
	PredictionID uint
	FeedbackType string
	ActualLabel  string
	Notes        string
	User         string
}

// ProbabilityMap decodes the stored probabilities. Rows without probabilities return nil.
func (p *Prediction) ProbabilityMap() (map[string]float64, error) {
	if len(p.Probabilities) == 0 {
		return nil, nil
	}
	var out map[string]float64
	if err := json.Unmarshal(p.Probabilities, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
