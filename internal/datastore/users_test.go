package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestCreateUserDuplicateIsConflict(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.CreateUser(ctx, "alice", []byte("$2a$10$hash"))
	require.NoError(t, err)
	assert.Positive(t, id)

	_, err = store.CreateUser(ctx, "alice", []byte("$2a$10$other"))
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err), "got %v", err)
	assert.True(t, isUniqueViolation(errors.Unwrap(err)))

	u, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("$2a$10$hash"), u.PasswordHash)
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	_, err := store.GetUserByUsername(context.Background(), "nobody")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestCreateUserValidation(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)

	_, err := store.CreateUser(context.Background(), "", []byte("x"))
	assert.True(t, errors.IsValidation(err))
	_, err = store.CreateUser(context.Background(), "carol", nil)
	assert.True(t, errors.IsValidation(err))
}

func TestLogUserActivity(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.LogUserActivity(ctx, "alice", ActivityLogin))
	require.NoError(t, store.LogUserActivity(ctx, "alice", ActivityPrediction))
	require.Error(t, store.LogUserActivity(ctx, "alice", ""))

	var rows []UserActivity
	require.NoError(t, store.DB().Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, ActivityLogin, rows[0].ActivityType)
	assert.Equal(t, "alice", rows[1].Username)
}
