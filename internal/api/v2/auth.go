// internal/api/v2/auth.go
package api

import (
	"context"
	"crypto/rand"
	"math/big"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	apiauth "github.com/sonoscan/sonoscan/internal/api/auth"
	userauth "github.com/sonoscan/sonoscan/internal/auth"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// AuthRequest represents the login and register request structure
type AuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse represents the login response structure
type AuthResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Username  string     `json:"username,omitempty"`
	IsAdmin   bool       `json:"is_admin,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// AuthStatus represents the current authentication status
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	Method        string `json:"auth_method,omitempty"`
	IsAdmin       bool   `json:"is_admin"`
}

// PasswordStrengthResponse rates a candidate password.
type PasswordStrengthResponse struct {
	Strength string `json:"strength"`
	Valid    bool   `json:"valid"`
	Message  string `json:"message,omitempty"`
}

// initAuthRoutes registers all authentication-related API endpoints
func (c *Controller) initAuthRoutes() {
	authGroup := c.Group.Group("/auth")

	// Routes that don't require authentication
	authGroup.POST("/login", c.Login, c.loginLimiter.Middleware)
	authGroup.POST("/register", c.Register, c.loginLimiter.Middleware)
	authGroup.POST("/password-strength", c.PasswordStrength)

	// Routes that require authentication
	protectedGroup := authGroup.Group("", c.requireAuth())
	protectedGroup.POST("/logout", c.Logout)
	protectedGroup.GET("/status", c.GetAuthStatus)
}

// Register handles POST /api/v2/auth/register
func (c *Controller) Register(ctx echo.Context) error {
	if !c.Settings.Security.AllowRegistration {
		return c.HandleError(ctx, nil, "Registration is disabled on this server", http.StatusForbidden)
	}

	var req AuthRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid registration request", http.StatusBadRequest)
	}

	created, err := c.Accounts.Register(ctx.Request().Context(), req.Username, req.Password)
	if err != nil {
		c.httpMetrics().RecordAuthOperation("register", metrics.LabelError)
		if errors.IsValidation(err) {
			return ctx.JSON(http.StatusBadRequest, AuthResponse{
				Success:   false,
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
		}
		return c.HandleError(ctx, err, "Registration failed", http.StatusInternalServerError)
	}
	if !created {
		c.httpMetrics().RecordAuthOperation("register", metrics.LabelError)
		return ctx.JSON(http.StatusConflict, AuthResponse{
			Success:   false,
			Message:   "Username already exists",
			Timestamp: time.Now(),
		})
	}

	c.httpMetrics().RecordAuthOperation("register", metrics.LabelSuccess)
	c.logActivity(ctx.Request().Context(), req.Username, datastore.ActivityRegister)
	c.invalidateAnalytics()

	return ctx.JSON(http.StatusCreated, AuthResponse{
		Success:   true,
		Message:   "Account created",
		Username:  req.Username,
		Timestamp: time.Now(),
	})
}

// Login handles POST /api/v2/auth/login
func (c *Controller) Login(ctx echo.Context) error {
	var req AuthRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid login request", http.StatusBadRequest)
	}

	// Check for empty credentials before calling the auth service
	if req.Username == "" || req.Password == "" {
		randomDelay(ctx.Request().Context(), 50, 150)
		return ctx.JSON(http.StatusBadRequest, AuthResponse{
			Success:   false,
			Message:   "Username and password are required",
			Timestamp: time.Now(),
		})
	}

	result, err := c.authService.Login(ctx.Request().Context(), ctx, req.Username, req.Password)
	if err != nil {
		c.httpMetrics().RecordAuthOperation("login", metrics.LabelError)
		if errors.Is(err, apiauth.ErrInvalidCredentials) {
			// Add a short, randomized delay to mitigate brute force/timing attacks
			randomDelay(ctx.Request().Context(), 50, 150)
			c.logger.Warn("failed login attempt",
				logger.String("username", req.Username),
				logger.String("ip", ctx.RealIP()))
			return ctx.JSON(http.StatusUnauthorized, AuthResponse{
				Success:   false,
				Message:   apiauth.ErrInvalidCredentials.Error(),
				Timestamp: time.Now(),
			})
		}
		return c.HandleError(ctx, err, "Login failed", http.StatusInternalServerError)
	}

	c.httpMetrics().RecordAuthOperation("login", metrics.LabelSuccess)
	c.logActivity(ctx.Request().Context(), result.Username, datastore.ActivityLogin)
	c.logger.Info("successful login",
		logger.String("username", result.Username),
		logger.String("ip", ctx.RealIP()))

	expires := result.ExpiresAt
	return ctx.JSON(http.StatusOK, AuthResponse{
		Success:   true,
		Message:   "Login successful",
		Username:  result.Username,
		IsAdmin:   c.authService.IsAdmin(result.Username),
		Token:     result.Token,
		ExpiresAt: &expires,
		Timestamp: time.Now(),
	})
}

// Logout handles POST /api/v2/auth/logout
func (c *Controller) Logout(ctx echo.Context) error {
	username := currentUser(ctx)
	if err := c.authService.Logout(ctx); err != nil {
		return c.HandleError(ctx, err, "Logout failed", http.StatusInternalServerError)
	}

	c.httpMetrics().RecordAuthOperation("logout", metrics.LabelSuccess)
	c.logActivity(ctx.Request().Context(), username, datastore.ActivityLogout)

	return ctx.JSON(http.StatusOK, AuthResponse{
		Success:   true,
		Message:   "Logged out successfully",
		Timestamp: time.Now(),
	})
}

// GetAuthStatus handles GET /api/v2/auth/status
func (c *Controller) GetAuthStatus(ctx echo.Context) error {
	username := currentUser(ctx)
	method, _ := ctx.Get(apiauth.CtxKeyAuthMethod).(apiauth.AuthMethod)
	authenticated, _ := ctx.Get(apiauth.CtxKeyIsAuthenticated).(bool)

	return ctx.JSON(http.StatusOK, AuthStatus{
		Authenticated: authenticated,
		Username:      username,
		Method:        method.String(),
		IsAdmin:       c.authService.IsAdmin(username),
	})
}

// PasswordStrength handles POST /api/v2/auth/password-strength. The password travels in
// the body so it never shows up in request logs.
func (c *Controller) PasswordStrength(ctx echo.Context) error {
	var req AuthRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request", http.StatusBadRequest)
	}

	resp := PasswordStrengthResponse{
		Strength: string(userauth.PasswordStrength(req.Password)),
		Valid:    true,
	}
	if err := userauth.ValidatePassword(req.Password); err != nil {
		resp.Valid = false
		resp.Message = err.Error()
	}
	return ctx.JSON(http.StatusOK, resp)
}

// randomDelay introduces a random sleep duration within the specified range [minMs, maxMs).
// It accepts a context to allow cancellation of the delay.
func randomDelay(ctx context.Context, minMs, maxMs int64) {
	if maxMs <= minMs {
		minMs = 50
		maxMs = 150
	}
	delayMs := minMs
	if n, err := rand.Int(rand.Reader, big.NewInt(maxMs-minMs)); err == nil {
		delayMs += n.Int64()
	}

	timer := time.NewTimer(time.Duration(delayMs) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
