// Package api provides the HTTP server infrastructure for sonoscan.
// This package contains the main server implementation while the JSON API
// endpoints are organized in the v2 subpackage.
package api

import (
	"fmt"
	"time"

	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultPort            = "8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultMaxUploadSize bounds request bodies when the settings leave it unset.
	DefaultMaxUploadSize = 16 << 20
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string // Host to bind to (empty for all interfaces)
	Port string // Port to listen on

	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// MaxUploadSize is the request body limit in bytes.
	MaxUploadSize int64

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            DefaultPort,
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		MaxUploadSize:   DefaultMaxUploadSize,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Port != "" {
		cfg.Port = settings.WebServer.Port
	}
	if settings.WebServer.MaxUploadSize > 0 {
		cfg.MaxUploadSize = settings.WebServer.MaxUploadSize
	}
	if len(settings.WebServer.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = settings.WebServer.AllowedOrigins
	}
	cfg.Debug = settings.WebServer.Debug || settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch {
	case c.Port == "":
		return errors.ValidationError("api", "port is required")
	case c.ReadTimeout <= 0:
		return errors.ValidationError("api", "read timeout must be positive")
	case c.WriteTimeout <= 0:
		return errors.ValidationError("api", "write timeout must be positive")
	case c.MaxUploadSize <= 0:
		return errors.ValidationError("api", "max upload size must be positive")
	}
	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// BodyLimit renders MaxUploadSize in the form echo's body limit middleware parses,
// rounded up to whole kilobytes.
func (c *Config) BodyLimit() string {
	return fmt.Sprintf("%dK", (c.MaxUploadSize+1023)/1024)
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, body_limit=%s, debug=%v",
		c.Address(), c.BodyLimit(), c.Debug)
}
