package datastore

import (
	"time"

	"github.com/sonoscan/sonoscan/internal/logger"
)

// slowQueryThreshold is when gorm traces a query as slow.
const slowQueryThreshold = 200 * time.Millisecond

func getLogger() logger.Logger {
	return logger.Global().Module("datastore")
}

func newGormLogger() *logger.GormLoggerAdapter {
	return logger.NewGormLoggerAdapter(getLogger(), slowQueryThreshold)
}
