package logger

import (
	"regexp"
	"strings"
)

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-._~+/]+=*)`),
	regexp.MustCompile(`(?i)((?:password|passwd|token|secret|api_key)=)([^&;\s]+)`),
	regexp.MustCompile(`(?i)((?:session|sonoscan_session)=)([^;,\s]{5,})`),
}

var sensitiveKeys = []string{"password", "passwd", "secret", "token", "authorization", "cookie", "session"}

// RedactSensitiveData masks credentials in free text such as request URIs.
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitivePatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}
	return input
}

// IsSensitiveKey reports whether a field or header name should never be logged verbatim.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
