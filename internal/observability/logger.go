// Package observability wires the Prometheus registry and the /metrics handler.
package observability

import "github.com/sonoscan/sonoscan/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("telemetry")
