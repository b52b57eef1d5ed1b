package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/sonoscan/sonoscan/internal/logger"
)

// limiterIdle is how long an unused per-client limiter is kept.
const limiterIdle = 15 * time.Minute

// LoginLimiter throttles credential endpoints per client IP with a token bucket.
type LoginLimiter struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache

	// OnLimited is called for every rejected request.
	OnLimited func(path string)
}

// NewLoginLimiter allows perSecond attempts per client with the given burst. A
// non-positive rate disables throttling.
func NewLoginLimiter(perSecond float64, burst int) *LoginLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LoginLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cache.New(limiterIdle, limiterIdle),
	}
}

// Allow consumes one attempt for key.
func (l *LoginLimiter) Allow(key string) bool {
	if l.limit <= 0 {
		return true
	}
	if v, ok := l.limiters.Get(key); ok {
		l.limiters.SetDefault(key, v)
		return v.(*rate.Limiter).Allow()
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(key, lim, cache.DefaultExpiration); err != nil {
		// another request created it first
		if v, ok := l.limiters.Get(key); ok {
			lim = v.(*rate.Limiter)
		}
	}
	return lim.Allow()
}

// Middleware rejects throttled clients with 429.
func (l *LoginLimiter) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if l.Allow(c.RealIP()) {
			return next(c)
		}
		path := c.Path()
		GetLogger().Warn("login attempts throttled",
			logger.String("ip", c.RealIP()),
			logger.String("path", path))
		if l.OnLimited != nil {
			l.OnLimited(path)
		}
		c.Response().Header().Set("Retry-After", "60")
		return c.JSON(http.StatusTooManyRequests, map[string]string{
			"error": "Too many attempts, try again later",
		})
	}
}
