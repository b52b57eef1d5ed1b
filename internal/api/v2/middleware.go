// internal/api/v2/middleware.go
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	apiauth "github.com/sonoscan/sonoscan/internal/api/auth"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// requireAuth accepts a bearer token or a browser session.
func (c *Controller) requireAuth() echo.MiddlewareFunc {
	return c.authMiddleware.Authenticate
}

// requireAdmin must follow requireAuth.
func (c *Controller) requireAdmin() echo.MiddlewareFunc {
	return c.authMiddleware.RequireAdmin
}

// currentUser returns the name set by the auth middleware.
func currentUser(ctx echo.Context) string {
	return apiauth.Username(ctx)
}

func (c *Controller) isAdmin(ctx echo.Context) bool {
	return c.authService.IsAdmin(currentUser(ctx))
}

// logActivity writes an audit row. A failure is logged and returned as a warning
// string so handlers can surface it without failing the request.
func (c *Controller) logActivity(ctx context.Context, username, activity string) string {
	if username == "" {
		return ""
	}
	if err := c.DS.LogUserActivity(ctx, username, activity); err != nil {
		c.logger.Warn("activity not recorded",
			logger.String("username", username),
			logger.String("activity", activity),
			logger.Error(err))
		return "activity " + activity + " was not recorded"
	}
	return ""
}

// invalidateAnalytics drops cached analytics after a write.
func (c *Controller) invalidateAnalytics() {
	c.analyticsCache.Flush()
}

func appendWarning(warnings []string, w string) []string {
	if w == "" {
		return warnings
	}
	return append(warnings, w)
}
