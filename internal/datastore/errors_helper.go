package datastore

import (
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/errors"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// validationError creates a validation error for a rejected input field
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// conflictError creates a conflict error for constraint violations
func conflictError(err error, operation, conflictType string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryConflict).
		Priority(errors.PriorityLow).
		Context("operation", operation).
		Context("conflict_type", conflictType).
		Build()
}

// notFoundError creates a not found error
func notFoundError(resource string, identifier any) error {
	return errors.Newf("%s not found", resource).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Context("resource", resource).
		Context("identifier", fmt.Sprintf("%v", identifier)).
		Build()
}

// isUniqueViolation reports whether err is a unique or primary key violation on either
// supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// isDatabaseLocked reports SQLITE_BUSY style contention.
func isDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

// errorType is the metrics label for a failed operation.
func errorType(err error) string {
	switch {
	case isUniqueViolation(err):
		return "conflict"
	case isDatabaseLocked(err):
		return "locked"
	case errors.IsNotFound(err):
		return "not_found"
	case errors.IsValidation(err):
		return "validation"
	default:
		return "other"
	}
}
