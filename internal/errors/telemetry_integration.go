package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter receives every error built while reporting is active.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter sends scrubbed errors to Sentry.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a reporter. The Sentry client must already be initialized.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// InitSentry initializes the Sentry client and installs a SentryReporter.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return New(NewStd("sentry dsn is empty")).
			Component("telemetry").
			Category(CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.User = sentry.User{}
			event.ServerName = ""
			return event
		},
	})
	if err != nil {
		return New(fmt.Errorf("sentry init: %w", err)).
			Component("telemetry").
			Category(CategoryConfiguration).
			Build()
	}

	SetTelemetryReporter(NewSentryReporter(true))
	return nil
}

// FlushTelemetry waits up to timeout for queued events to be delivered.
func FlushTelemetry(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends ee once. Context values under private keys are dropped and
// string values are scrubbed.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := fmt.Sprintf("%s %s", ee.Component, ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}

		for key, value := range ee.GetContext() {
			if privateContextKeys[key] {
				continue
			}
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := levelFor(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryValidation, CategoryNotFound, CategoryConflict, CategoryAuthentication, CategoryCancellation:
		return sentry.LevelInfo
	case CategoryFileIO, CategoryImage:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	reporterMu      sync.RWMutex
	globalTelemetry TelemetryReporter
)

// SetTelemetryReporter installs reporter. Pass nil to disable reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetry = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	reporter := globalTelemetry
	reporterMu.RUnlock()

	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// privateContextKeys never leave the process.
var privateContextKeys = map[string]bool{
	"username":   true,
	"user":       true,
	"patient_id": true,
	"password":   true,
}

var scrubPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(https?://[^?\s]+)\?\S*`), "$1?[REDACTED]"},
	{regexp.MustCompile(`(?i)(bearer\s+)\S+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)((?:api[_-]?key|token|password|secret)[=:])\S+`), "${1}[REDACTED]"},
	{regexp.MustCompile(`(?i)((?:patient[_-]?id|username|user)[=:])\S+`), "${1}[ID_REDACTED]"},
	{regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), "[EMAIL_REDACTED]"},
	{regexp.MustCompile(`(?:/[^/\s"']+){2,}/([^/\s"']+)`), "[PATH]/$1"},
}

// scrubMessage removes credentials, identifiers and directory structure from a message.
func scrubMessage(message string) string {
	for _, p := range scrubPatterns {
		message = p.re.ReplaceAllString(message, p.replacement)
	}
	return strings.TrimSpace(message)
}
