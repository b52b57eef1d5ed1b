// internal/api/v2/api.go
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/sonoscan/sonoscan/internal/analytics"
	apiauth "github.com/sonoscan/sonoscan/internal/api/auth"
	userauth "github.com/sonoscan/sonoscan/internal/auth"
	"github.com/sonoscan/sonoscan/internal/classifier"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/gradcam"
	"github.com/sonoscan/sonoscan/internal/logger"
	"github.com/sonoscan/sonoscan/internal/observability"
	"github.com/sonoscan/sonoscan/internal/observability/metrics"
)

// Controller manages the API routes and handlers
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Loader    *classifier.Loader
	Analytics *analytics.Service
	Accounts  *userauth.Service

	metrics   *observability.Metrics
	logger    logger.Logger
	startTime time.Time

	// Auth related fields (injected from server via functional options)
	authService    apiauth.Service
	authMiddleware *apiauth.Middleware
	loginLimiter   *apiauth.LoginLimiter

	analyticsCache *cache.Cache
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithAuthService sets the authentication service for the controller.
func WithAuthService(svc apiauth.Service) Option {
	return func(c *Controller) {
		c.authService = svc
	}
}

// WithAuthMiddleware sets the authentication middleware for the controller.
func WithAuthMiddleware(mw *apiauth.Middleware) Option {
	return func(c *Controller) {
		c.authMiddleware = mw
	}
}

// WithAccounts sets the account service used for registration.
func WithAccounts(accounts *userauth.Service) Option {
	return func(c *Controller) {
		c.Accounts = accounts
	}
}

// WithLoginLimiter replaces the limiter built from the security settings.
func WithLoginLimiter(l *apiauth.LoginLimiter) Option {
	return func(c *Controller) {
		c.loginLimiter = l
	}
}

// New creates the API controller and registers its routes under /api/v2. Collaborators
// not supplied through options are built from settings.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings, loader *classifier.Loader,
	m *observability.Metrics, opts ...Option) (*Controller, error) {
	if ds == nil || settings == nil || loader == nil {
		return nil, errors.Newf("api controller needs a datastore, settings and a model loader").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := gradcam.ResolveTarget(settings.GradCAM.TargetLayer); err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryConfiguration).
			Context("setting", "gradcam.targetlayer").
			Build()
	}

	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v2"),
		DS:        ds,
		Settings:  settings,
		Loader:    loader,
		metrics:   m,
		logger:    logger.Global().Module("api"),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.Accounts == nil {
		c.Accounts = userauth.NewService(ds, settings.Security.AdminUsers)
	}
	if c.authService == nil {
		adapter, err := apiauth.NewAccountAdapter(c.Accounts, settings.Security)
		if err != nil {
			return nil, err
		}
		c.authService = adapter
	}
	if c.authMiddleware == nil {
		c.authMiddleware = apiauth.NewMiddleware(c.authService)
	}
	if c.loginLimiter == nil {
		c.loginLimiter = apiauth.NewLoginLimiter(settings.Security.LoginRateLimit, settings.Security.LoginBurst)
	}
	if c.loginLimiter.OnLimited == nil {
		c.loginLimiter.OnLimited = c.httpMetrics().RecordRateLimited
	}

	c.Analytics = analytics.New(ds.DB())
	c.Analytics.Metrics = c.datastoreMetrics()

	ttl := c.cacheAge()
	c.analyticsCache = cache.New(ttl, 2*ttl)

	c.initRoutes()
	return c, nil
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	// Health check endpoint - publicly accessible
	c.Group.GET("/health", c.HealthCheck)

	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"auth routes", c.initAuthRoutes},
		{"prediction routes", c.initPredictionRoutes},
		{"analytics routes", c.initAnalyticsRoutes},
		{"system routes", c.initSystemRoutes},
		{"admin routes", c.initAdminRoutes},
	}

	for _, initializer := range routeInitializers {
		initializer.fn()
		c.Debug("initialized %s", initializer.name)
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":        "healthy",
		"model_version": c.Settings.Model.Version,
		"model_loaded":  c.Loader.Loaded(),
		"timestamp":     time.Now().Format(time.RFC3339),
	}

	dbStatus := "connected"
	if err := c.pingDatabase(ctx); err != nil {
		dbStatus = "disconnected"
		response["status"] = "degraded"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	uptime := time.Since(c.startTime)
	response["uptime"] = uptime.Round(time.Second).String()
	response["uptime_seconds"] = uptime.Seconds()

	return ctx.JSON(http.StatusOK, response)
}

func (c *Controller) pingDatabase(ctx echo.Context) error {
	db := c.DS.DB()
	if db == nil {
		return errors.Newf("database not open").Component("api").Category(errors.CategoryDatabase).Build()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx.Request().Context())
}

// Shutdown releases the controller's caches. The go-cache janitors exit with the process.
func (c *Controller) Shutdown() {
	if c.analyticsCache != nil {
		c.analyticsCache.Flush()
	}
	c.Debug("API controller shutting down")
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	return uuid.NewString()[:8]
}

// HandleError logs err under a fresh correlation id and writes it as JSON.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", errorResp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.logger.Error("API error", fields...)
	} else {
		c.logger.Warn("API error", fields...)
	}

	return ctx.JSON(code, errorResp)
}

// HandleServiceError maps the error category to a status code and writes the response.
func (c *Controller) HandleServiceError(ctx echo.Context, err error, message string) error {
	code := statusForError(err)
	if code < http.StatusInternalServerError && err != nil {
		message = err.Error()
	}
	return c.HandleError(ctx, err, message, code)
}

// statusForError maps error categories to HTTP status codes.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.IsValidation(err), errors.IsCategory(err, errors.CategoryImage):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryAuthentication):
		return http.StatusUnauthorized
	case errors.IsCategory(err, errors.CategoryModelLoad):
		return http.StatusServiceUnavailable
	case errors.IsCategory(err, errors.CategoryCancellation):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Debug logs debug messages when debug mode is enabled
func (c *Controller) Debug(msg string, v ...any) {
	if !c.Settings.WebServer.Debug {
		return
	}
	if len(v) > 0 {
		c.logger.Debug("debug", logger.String("detail", fmt.Sprintf(msg, v...)))
		return
	}
	c.logger.Debug(msg)
}

func (c *Controller) httpMetrics() *metrics.HTTPMetrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.HTTP
}

func (c *Controller) classifierMetrics() *metrics.ClassifierMetrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Classifier
}

func (c *Controller) datastoreMetrics() *metrics.DatastoreMetrics {
	if c.metrics == nil {
		return nil
	}
	return c.metrics.Datastore
}
