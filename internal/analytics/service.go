// Package analytics answers the dashboard questions: totals, trends, per-user activity
// and model accuracy as judged by reviewer feedback. Every query tolerates an empty
// database and returns zero values rather than errors.
package analytics

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// Default windows and limits.
const (
	DefaultDays              = 30
	DefaultActiveDays        = 7
	DefaultLowConfidence     = 0.7
	DefaultLowConfidenceRows = 50
	DefaultRecentRows        = 20
	DefaultRecentFullRows    = 10
	DefaultTopUsers          = 10
	DefaultFlaggedRows       = 20
	DefaultFeedbackRows      = 50
)

// Service runs analytics queries against the prediction store.
type Service struct {
	DB *gorm.DB
	// Now anchors the day windows. It defaults to time.Now.
	Now     func() time.Time
	Metrics *metrics.DatastoreMetrics
}

// New returns a Service on db.
func New(db *gorm.DB) *Service {
	return &Service{DB: db}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// cutoff is the start of a window of days ending now.
func (s *Service) cutoff(days int) time.Time {
	return s.now().AddDate(0, 0, -days)
}

func (s *Service) isMySQL() bool {
	return s.DB.Dialector.Name() == "mysql"
}

// dateExpr renders col as a YYYY-MM-DD string.
func (s *Service) dateExpr(col string) string {
	if s.isMySQL() {
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col)
	}
	return fmt.Sprintf("DATE(%s)", col)
}

// hourExpr renders the hour of day of col as an integer.
func (s *Service) hourExpr(col string) string {
	if s.isMySQL() {
		return fmt.Sprintf("HOUR(%s)", col)
	}
	return fmt.Sprintf("CAST(strftime('%%H', %s) AS INTEGER)", col)
}

// run executes one named query with metrics and error wrapping.
func run[T any](ctx context.Context, s *Service, name string, fn func(db *gorm.DB) (T, error)) (T, error) {
	start := time.Now()
	out, err := fn(s.DB.WithContext(ctx))
	status := metrics.LabelSuccess
	if err != nil {
		status = metrics.LabelError
		err = errors.New(err).
			Component("analytics").
			Category(errors.CategoryDatabase).
			Context("query", name).
			Build()
	}
	s.Metrics.RecordAnalyticsOperation(name, status, time.Since(start).Seconds())
	return out, err
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * metrics.PercentageFactor
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
