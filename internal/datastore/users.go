package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// CreateUser stores a new account. A taken username is a CategoryConflict error.
func (ds *DataStore) CreateUser(ctx context.Context, username string, passwordHash []byte) (uint, error) {
	start := time.Now()
	if username == "" {
		return 0, validationError("username is required", "username", username)
	}
	if len(passwordHash) == 0 {
		return 0, validationError("password hash is required", "password_hash", "")
	}
	db, err := ds.conn(ctx)
	if err != nil {
		return 0, err
	}

	u := User{Username: username, PasswordHash: passwordHash, CreatedAt: ds.now()}
	err = db.Create(&u).Error
	ds.observe(metrics.OpDbInsert, "users", start, err)
	switch {
	case isUniqueViolation(err):
		return 0, conflictError(err, "create_user", "username")
	case err != nil:
		return 0, dbError(err, "create_user", errors.PriorityHigh, "username", username)
	}
	return u.ID, nil
}

// GetUserByUsername loads an account.
func (ds *DataStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	start := time.Now()
	db, err := ds.conn(ctx)
	if err != nil {
		return nil, err
	}
	var u User
	err = db.Where("username = ?", username).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = notFoundError("user", username)
		ds.observe(metrics.OpDbQuery, "users", start, err)
		return nil, err
	}
	ds.observe(metrics.OpDbQuery, "users", start, err)
	if err != nil {
		return nil, dbError(err, "get_user", errors.PriorityMedium, "username", username)
	}
	return &u, nil
}

// LogUserActivity appends an audit row.
func (ds *DataStore) LogUserActivity(ctx context.Context, username, activityType string) error {
	start := time.Now()
	if username == "" || activityType == "" {
		return validationError("username and activity type are required", "activity_type", activityType)
	}
	db, err := ds.conn(ctx)
	if err != nil {
		return err
	}
	err = db.Create(&UserActivity{Username: username, ActivityType: activityType, CreatedAt: ds.now()}).Error
	ds.observe(metrics.OpDbInsert, "user_activity", start, err)
	if err != nil {
		return dbError(err, "log_activity", errors.PriorityLow, "username", username, "activity", activityType)
	}
	return nil
}
