package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

// predictionV1 is the predictions table as first created, before the metadata columns.
type predictionV1 struct {
	ID             uint      `gorm:"primaryKey"`
	Filename       string    `gorm:"size:255;not null"`
	PredictedLabel string    `gorm:"size:64;not null;index"`
	Confidence     float64   `gorm:"not null"`
	User           *string   `gorm:"size:64;index"`
	CreatedAt      time.Time `gorm:"index"`
}

func (predictionV1) TableName() string { return "predictions" }

// Migrations lists every schema step in order. Versions are never reused.
var Migrations = []Migration{
	{Version: 1, Name: "create_users", Up: createTable(&User{})},
	{Version: 2, Name: "create_predictions", Up: createTable(&predictionV1{})},
	{Version: 3, Name: "prediction_metadata", Up: addColumns(&Prediction{},
		"model_version", "report_path", "probabilities", "patient_id")},
	{Version: 4, Name: "create_user_activity", Up: createTable(&UserActivity{})},
	{Version: 5, Name: "create_prediction_feedback", Up: createTable(&PredictionFeedback{})},
	{Version: 6, Name: "prediction_timing", Up: func(tx *gorm.DB) error {
		if err := addColumns(&Prediction{}, "confidence_score", "processing_time_ms")(tx); err != nil {
			return err
		}
		return tx.Exec("UPDATE predictions SET confidence_score = confidence WHERE confidence_score IS NULL").Error
	}},
}

func createTable(model any) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		if tx.Migrator().HasTable(model) {
			return nil
		}
		return tx.Migrator().CreateTable(model)
	}
}

// addColumns adds the named columns of model that the table lacks. Checking first keeps
// concurrent migrators from failing on an already added column.
func addColumns(model any, columns ...string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		m := tx.Migrator()
		for _, col := range columns {
			if m.HasColumn(model, col) {
				continue
			}
			if err := m.AddColumn(model, col); err != nil {
				return err
			}
		}
		return nil
	}
}

// SchemaVersionNumber returns the highest applied migration, 0 on a fresh database.
func (ds *DataStore) SchemaVersionNumber(ctx context.Context) (int, error) {
	db, err := ds.conn(ctx)
	if err != nil {
		return 0, err
	}
	if !db.Migrator().HasTable(&SchemaVersion{}) {
		return 0, nil
	}
	var version int
	if err := db.Model(&SchemaVersion{}).Select("COALESCE(MAX(version), 0)").Scan(&version).Error; err != nil {
		return 0, dbError(err, "schema_version", errors.PriorityHigh)
	}
	return version, nil
}

// Migrate applies every migration above the recorded version, each in its own
// transaction together with its schema_versions row. Running it again is a no-op.
func (ds *DataStore) Migrate(ctx context.Context) error {
	start := time.Now()
	db, err := ds.conn(ctx)
	if err != nil {
		return err
	}
	log := getLogger()

	if err := createTable(&SchemaVersion{})(db); err != nil {
		ds.observe(metrics.OpMigration, "schema_versions", start, err)
		return dbError(err, "migrate", errors.PriorityCritical, "step", "schema_versions")
	}

	current, err := ds.SchemaVersionNumber(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaVersion{Version: m.Version, Name: m.Name, AppliedAt: ds.now()}).Error
		})
		switch {
		case err == nil:
			applied++
			ds.recordTransaction(metrics.LabelSuccess)
			log.Info("applied migration", logger.Int("version", m.Version), logger.String("name", m.Name))
		case isUniqueViolation(err):
			// another process recorded this version first
			ds.recordTransaction("rollback")
			log.Debug("migration already applied", logger.Int("version", m.Version))
		default:
			ds.recordTransaction("rollback")
			ds.observe(metrics.OpMigration, "schema_versions", start, err)
			return dbError(err, "migrate", errors.PriorityCritical,
				"version", m.Version, "name", m.Name)
		}
	}

	if applied > 0 {
		log.Info("database schema up to date",
			logger.Int("applied", applied),
			logger.Int("version", Migrations[len(Migrations)-1].Version))
	}
	ds.schemaReady.Store(true)
	ds.observe(metrics.OpMigration, "schema_versions", start, nil)
	return nil
}

// EnsureSchema migrates once per process; later calls only read an atomic flag.
func (ds *DataStore) EnsureSchema(ctx context.Context) error {
	if ds.schemaReady.Load() {
		return nil
	}
	ds.schemaMu.Lock()
	defer ds.schemaMu.Unlock()
	if ds.schemaReady.Load() {
		return nil
	}
	return ds.Migrate(ctx)
}

func (ds *DataStore) recordTransaction(status string) {
	if ds.metrics != nil {
		ds.metrics.RecordTransaction(status)
	}
}
