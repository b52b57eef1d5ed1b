package api

import "time"

// DefaultAnalyticsCacheTTL applies when webserver.cachettl is unset.
const DefaultAnalyticsCacheTTL = 30 * time.Second

// Query limits for list endpoints.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	MaxDays          = 365
)

// uploadsDir holds a PNG copy of every classified image, below the reports directory.
const uploadsDir = "uploads"

// Actions reported by the admin endpoints.
const (
	ActionReloadModel = "reload_model"
)
