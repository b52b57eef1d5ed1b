// Package datastore persists predictions, users, activity and feedback through gorm on
// SQLite or MySQL.
package datastore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// Interface is the store API the rest of the application depends on.
type Interface interface {
	Open() error
	Close() error
	DB() *gorm.DB
	SetMetrics(m *metrics.DatastoreMetrics)

	Migrate(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	LogPrediction(ctx context.Context, in PredictionInput) (uint, error)
	FetchPredictions(ctx context.Context, limit int) ([]Prediction, error)
	GetPrediction(ctx context.Context, id uint) (*Prediction, error)
	UpdatePredictionReportPath(ctx context.Context, id uint, path string) error

	SubmitPredictionFeedback(ctx context.Context, in FeedbackInput) (uint, error)
	GetPredictionFeedback(ctx context.Context, predictionID uint) (*PredictionFeedback, error)

	CreateUser(ctx context.Context, username string, passwordHash []byte) (uint, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	LogUserActivity(ctx context.Context, username, activityType string) error
}

// DataStore implements Interface on top of an open *gorm.DB. The dialect specific
// stores embed it and only add Open and Close.
type DataStore struct {
	db      *gorm.DB
	metrics *metrics.DatastoreMetrics

	// Now stamps created_at columns. It defaults to time.Now in UTC.
	Now func() time.Time

	schemaReady atomic.Bool
	schemaMu    sync.Mutex
}

// New returns the store selected by settings.Output. The store is not opened.
func New(settings *conf.Settings) (Interface, error) {
	switch {
	case settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled:
		return nil, errors.Newf("both SQLite and MySQL are enabled, enable only one").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}, nil
	default:
		return nil, errors.Newf("no database configured, enable SQLite or MySQL").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// DB returns the underlying connection pool for read-only consumers such as analytics.
func (ds *DataStore) DB() *gorm.DB {
	return ds.db
}

// SetMetrics attaches Prometheus recorders. Passing nil disables them.
func (ds *DataStore) SetMetrics(m *metrics.DatastoreMetrics) {
	ds.metrics = m
}

func (ds *DataStore) now() time.Time {
	if ds.Now != nil {
		return ds.Now().UTC()
	}
	return time.Now().UTC()
}

func (ds *DataStore) conn(ctx context.Context) (*gorm.DB, error) {
	if ds.db == nil {
		return nil, errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityHigh).
			Build()
	}
	return ds.db.WithContext(ctx), nil
}

// observe records the outcome of one operation.
func (ds *DataStore) observe(operation, table string, start time.Time, err error) {
	if ds.metrics == nil {
		return
	}
	ds.metrics.RecordDbOperationDuration(operation, table, time.Since(start).Seconds())
	if err != nil {
		ds.metrics.RecordDbOperation(operation, table, metrics.LabelError)
		ds.metrics.RecordDbOperationError(operation, table, errorType(err))
		return
	}
	ds.metrics.RecordDbOperation(operation, table, metrics.LabelSuccess)

	if sqlDB, dbErr := ds.db.DB(); dbErr == nil {
		stats := sqlDB.Stats()
		ds.metrics.UpdateConnectionMetrics(stats.InUse, stats.Idle, stats.MaxOpenConnections)
	}
}

// closeDB releases the pool.
func (ds *DataStore) closeDB() error {
	if ds.db == nil {
		return nil
	}
	sqlDB, err := ds.db.DB()
	if err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", errors.PriorityMedium)
	}
	ds.db = nil
	ds.schemaReady.Store(false)
	return nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  newGormLogger(),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}
