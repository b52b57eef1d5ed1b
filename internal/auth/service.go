// Package auth holds the account rules: username and password policy, registration and
// password verification against the datastore.
package auth

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// GetLogger returns the auth package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("auth")
}

// Store is the part of the datastore the account service needs.
type Store interface {
	CreateUser(ctx context.Context, username string, passwordHash []byte) (uint, error)
	GetUserByUsername(ctx context.Context, username string) (*datastore.User, error)
}

// Service registers and authenticates accounts.
type Service struct {
	store      Store
	adminUsers []string

	// Cost is the bcrypt cost for new hashes.
	Cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService returns a Service backed by store. adminUsers lists the names IsAdmin accepts.
func NewService(store Store, adminUsers []string) *Service {
	return &Service{
		store:      store,
		adminUsers: slices.Clone(adminUsers),
		Cost:       bcrypt.DefaultCost,
	}
}

// Register creates an account. A policy violation returns false and a validation error.
// A taken username returns false and no error. Nothing is written unless both checks pass.
func (s *Service) Register(ctx context.Context, username, password string) (bool, error) {
	if err := ValidateUsername(username); err != nil {
		return false, err
	}
	if err := ValidatePassword(password); err != nil {
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.Cost)
	if err != nil {
		return false, errors.New(err).
			Component("auth").
			Category(errors.CategorySystem).
			Context("operation", "hash_password").
			Build()
	}

	if _, err := s.store.CreateUser(ctx, username, hash); err != nil {
		if errors.IsConflict(err) {
			GetLogger().Info("registration rejected, username taken", logger.String("username", username))
			return false, nil
		}
		return false, err
	}
	GetLogger().Info("user registered", logger.String("username", username))
	return true, nil
}

// Authenticate reports whether password matches the stored hash for username. Unknown users
// still pay for a bcrypt comparison so timing does not reveal which names exist.
func (s *Service) Authenticate(ctx context.Context, username, password string) bool {
	u, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.IsNotFound(err) {
			GetLogger().Warn("user lookup failed", logger.String("username", username), logger.Error(err))
		}
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}

// IsAdmin reports whether username is configured as an administrator.
func (s *Service) IsAdmin(username string) bool {
	return username != "" && slices.Contains(s.adminUsers, username)
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("sonoscan-dummy-password"), s.Cost)
		if err != nil {
			GetLogger().Error("failed to build dummy hash", logger.Error(err))
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
