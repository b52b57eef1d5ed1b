package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// busyTimeoutMs is how long SQLite waits on a locked database before failing.
const busyTimeoutMs = 5000

// SQLiteStore is the default store, a single database file in WAL mode.
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// sqliteDSN builds the go-sqlite3 connection string for path.
func sqliteDSN(path string) string {
	if path == MemoryPath {
		return fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d", MemoryPath, busyTimeoutMs)
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on&_synchronous=NORMAL",
		filepath.ToSlash(path), busyTimeoutMs)
}

// Open connects to the database file and applies pending migrations.
func (store *SQLiteStore) Open() error {
	path := store.Settings.Output.SQLite.Path
	if path == "" {
		return validationError("sqlite path is empty", "output.sqlite.path", path)
	}

	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.New(err).
					Component("datastore").
					Category(errors.CategoryFileIO).
					Context("path", dir).
					Build()
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), gormConfig())
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "path", path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical, "path", path)
	}
	if path == MemoryPath {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	store.db = db
	getLogger().Info("opened SQLite database", logger.String("path", path))

	return store.Migrate(context.Background())
}

// Close releases the connection pool.
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
