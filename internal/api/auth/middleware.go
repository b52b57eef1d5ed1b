// internal/api/auth/middleware.go
package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sonoscan/sonoscan/internal/logger"
)

// bearerTokenParts is the expected number of parts when splitting Authorization header.
const bearerTokenParts = 2

// Context keys for authentication values stored in echo.Context.
// These keys are prefixed with "auth:" to prevent collisions with other packages.
const (
	// CtxKeyIsAuthenticated indicates whether the request is authenticated.
	CtxKeyIsAuthenticated = "auth:isAuthenticated"
	// CtxKeyAuthMethod indicates the authentication method used.
	CtxKeyAuthMethod = "auth:authMethod"
	// CtxKeyUsername contains the authenticated user's username.
	CtxKeyUsername = "auth:username"
)

// Middleware provides authentication middleware with the Service
type Middleware struct {
	AuthService Service
}

// NewMiddleware creates a new auth middleware
func NewMiddleware(service Service) *Middleware {
	return &Middleware{
		AuthService: service,
	}
}

// Authenticate is the main middleware function for authentication
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := m.validateAuthService(c); err != nil {
			return err
		}

		// Try token auth first (from Authorization header)
		if result := m.tryTokenAuth(c); result.handled {
			if result.denied {
				return result.err
			}
			return next(c)
		}

		// Fall back to session-based authentication
		if m.trySessionAuth(c) {
			return next(c)
		}

		return m.returnAPIUnauthorized(c)
	}
}

// RequireAdmin rejects authenticated users that are not administrators. It must run
// after Authenticate.
func (m *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		username := Username(c)
		if username == "" || m.AuthService == nil || !m.AuthService.IsAdmin(username) {
			m.log().Warn("admin access denied",
				logger.String("username", username),
				logger.String("path", c.Request().URL.Path))
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "Administrator access required",
			})
		}
		return next(c)
	}
}

// Username returns the user the middleware authenticated, or "".
func Username(c echo.Context) string {
	username, _ := c.Get(CtxKeyUsername).(string)
	return username
}

// authResult represents the result of an authentication attempt.
type authResult struct {
	handled bool  // Whether the auth attempt was processed (header present)
	denied  bool  // The 401 response has been written; next must not run
	err     error // Error from writing the response
}

// validateAuthService checks if AuthService is configured and returns an error response if not.
func (m *Middleware) validateAuthService(c echo.Context) error {
	if m.AuthService == nil {
		m.log().Error("authentication middleware called with nil AuthService",
			logger.String("path", c.Request().URL.Path),
			logger.String("ip", c.RealIP()))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Internal configuration error: authentication service not available",
		})
	}
	return nil
}

// tryTokenAuth attempts to authenticate using a Bearer token from the Authorization header.
func (m *Middleware) tryTokenAuth(c echo.Context) authResult {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return authResult{handled: false}
	}

	path := c.Request().URL.Path
	ip := c.RealIP()

	parts := strings.SplitN(authHeader, " ", bearerTokenParts)
	if len(parts) != bearerTokenParts || !strings.EqualFold(parts[0], "bearer") {
		return m.handleMalformedAuthHeader(c, path, ip)
	}

	username, err := m.AuthService.ValidateToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return m.handleInvalidToken(c, path, ip)
	}

	m.log().Debug("token authentication successful",
		logger.String("path", path),
		logger.String("username", username))
	c.Set(CtxKeyIsAuthenticated, true)
	c.Set(CtxKeyUsername, username)
	c.Set(CtxKeyAuthMethod, AuthMethodToken)
	return authResult{handled: true}
}

// handleMalformedAuthHeader returns an error response for malformed Authorization headers.
func (m *Middleware) handleMalformedAuthHeader(c echo.Context, path, ip string) authResult {
	m.log().Warn("malformed Authorization header",
		logger.String("path", path),
		logger.String("ip", ip))
	c.Response().Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	return authResult{
		handled: true,
		denied:  true,
		err: c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid Authorization header",
		}),
	}
}

// handleInvalidToken returns an error response for invalid tokens.
func (m *Middleware) handleInvalidToken(c echo.Context, path, ip string) authResult {
	m.log().Warn("token validation failed",
		logger.String("path", path),
		logger.String("ip", ip))
	c.Response().Header().Set("WWW-Authenticate",
		`Bearer realm="api", error="invalid_token", error_description="Invalid or expired token"`)
	return authResult{
		handled: true,
		denied:  true,
		err: c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid or expired token",
		}),
	}
}

// trySessionAuth attempts to authenticate using the session cookie.
func (m *Middleware) trySessionAuth(c echo.Context) bool {
	if err := m.AuthService.CheckAccess(c); err != nil {
		return false
	}
	c.Set(CtxKeyIsAuthenticated, true)
	c.Set(CtxKeyAuthMethod, AuthMethodBrowserSession)
	c.Set(CtxKeyUsername, m.AuthService.GetUsername(c))
	return true
}

func (m *Middleware) log() logger.Logger {
	return GetLogger()
}

// returnAPIUnauthorized returns a JSON error response for API clients.
func (m *Middleware) returnAPIUnauthorized(c echo.Context) error {
	m.log().Info("authentication required but not provided",
		logger.String("path", c.Request().URL.Path),
		logger.String("ip", c.RealIP()))
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"error": "Authentication required",
	})
}
