// internal/api/auth/service.go
package auth

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// GetLogger returns the auth package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("auth")
}

// Sentinel errors for authentication failures.
var (
	ErrInvalidCredentials = errors.NewStd("invalid credentials")
	ErrInvalidToken       = errors.NewStd("invalid or expired token")
	ErrSessionNotFound    = errors.NewStd("session not found or expired")
	ErrLogoutFailed       = errors.NewStd("logout operation failed")
)

// AuthMethod represents the type of authentication used
type AuthMethod int

const (
	AuthMethodUnknown AuthMethod = iota
	AuthMethodNone
	AuthMethodToken
	AuthMethodBrowserSession
)

func (m AuthMethod) String() string {
	switch m {
	case AuthMethodNone:
		return "None"
	case AuthMethodToken:
		return "Token"
	case AuthMethodBrowserSession:
		return "BrowserSession"
	default:
		return "Unknown"
	}
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Username  string
	Token     string
	ExpiresAt time.Time
}

// Service defines the authentication interface for API endpoints
type Service interface {
	// CheckAccess validates the browser session of a request.
	// Returns nil on success, or ErrSessionNotFound on failure.
	CheckAccess(c echo.Context) error

	// GetUsername retrieves the username of the authenticated user (if available)
	GetUsername(c echo.Context) string

	// GetAuthMethod returns the authentication method used as a defined constant.
	GetAuthMethod(c echo.Context) AuthMethod

	// ValidateToken checks a bearer token and returns the user it was issued to.
	ValidateToken(token string) (string, error)

	// Login checks the credentials, starts a browser session and issues a bearer token.
	// Returns ErrInvalidCredentials when the username or password is wrong.
	Login(ctx context.Context, c echo.Context, username, password string) (*LoginResult, error)

	// Logout invalidates the current session.
	// Returns nil on success, or ErrLogoutFailed on failure.
	Logout(c echo.Context) error

	// IsAdmin reports whether username has administrative rights.
	IsAdmin(username string) bool
}
