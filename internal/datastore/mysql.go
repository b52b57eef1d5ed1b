package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// MySQLStore stores everything in a MySQL database.
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

func mysqlDSN(s conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Open connects to MySQL and applies pending migrations.
func (store *MySQLStore) Open() error {
	cfg := store.Settings.Output.MySQL

	db, err := gorm.Open(mysql.Open(mysqlDSN(cfg)), gormConfig())
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical,
			"host", cfg.Host, "database", cfg.Database)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return dbError(err, "open", errors.PriorityCritical)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	store.db = db
	getLogger().Info("connected to MySQL",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database))

	return store.Migrate(context.Background())
}

// Close releases the connection pool.
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
