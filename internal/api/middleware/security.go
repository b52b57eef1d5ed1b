package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// HSTSMaxAge is one year in seconds.
const HSTSMaxAge = 31536000

// apiContentSecurityPolicy forbids every subresource; the API only serves JSON,
// PNG payloads inside JSON and self-contained report downloads.
const apiContentSecurityPolicy = "default-src 'none'; img-src data:; style-src 'unsafe-inline'; frame-ancestors 'none'"

// SecurityConfig holds the CORS origins and response-hardening headers.
type SecurityConfig struct {
	AllowedOrigins        []string
	HSTSMaxAge            int
	ContentSecurityPolicy string
}

// NewSecurityConfig returns the configuration for the given CORS origins. No origins
// means any origin.
func NewSecurityConfig(origins []string) SecurityConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return SecurityConfig{
		AllowedOrigins:        origins,
		HSTSMaxAge:            HSTSMaxAge,
		ContentSecurityPolicy: apiContentSecurityPolicy,
	}
}

// AllowCredentials reports whether cross-origin requests may carry the session
// cookie. Browsers refuse credentials with a wildcard origin, so only an explicit
// origin list enables them.
func (c SecurityConfig) AllowCredentials() bool {
	return len(c.AllowedOrigins) > 0 && !slices.Contains(c.AllowedOrigins, "*")
}

// NewCORS creates the CORS middleware for the JSON API.
func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		ExposeHeaders:    []string{echo.HeaderRetryAfter, echo.HeaderWWWAuthenticate},
		AllowCredentials: config.AllowCredentials(),
	})
}

// NewSecureHeaders sets the hardening headers on every response.
func NewSecureHeaders(config SecurityConfig) echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            config.HSTSMaxAge,
		ContentSecurityPolicy: config.ContentSecurityPolicy,
		ReferrerPolicy:        "no-referrer",
	})
}

// NewBodyLimit rejects request bodies above limit, e.g. "16384K".
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
