// Package secrets resolves credentials from environment references and mounted
// secret files (Docker or Kubernetes secrets). Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sonoscan/sonoscan/internal/errors"
	"github.com/sonoscan/sonoscan/internal/logger"
)

// maxSecretFileSize limits secret file reads; secrets are tokens and passwords.
const maxSecretFileSize = 64 * 1024

func secretError(msg string, ctx ...any) error {
	b := errors.Newf("%s", msg).
		Component("secrets").
		Category(errors.CategoryConfiguration)
	for i := 0; i+1 < len(ctx); i += 2 {
		b = b.Context(ctx[i].(string), ctx[i+1])
	}
	return b.Build()
}

// ExpandString resolves ${VAR} and ${VAR:-default} references. A referenced variable
// that is unset and has no default is an error naming the variable.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, def, hasDefault := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretError("missing required environment variable(s): "+strings.Join(missing, ", "),
			"variables", strings.Join(missing, ","))
	}
	return expanded, nil
}

// ReadFile reads a secret file, dropping trailing line endings. Files readable by group
// or others are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", secretError("secret file path is empty")
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	switch {
	case os.IsNotExist(err):
		return "", secretError("secret file not found", "path", clean)
	case err != nil:
		return "", errors.New(err).Component("secrets").Category(errors.CategoryFileIO).Context("path", clean).Build()
	case !info.Mode().IsRegular():
		return "", secretError("secret path is not a regular file", "path", clean)
	case info.Size() > maxSecretFileSize:
		return "", secretError("secret file is too large", "path", clean, "max_bytes", maxSecretFileSize)
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", errors.New(err).Component("secrets").Category(errors.CategoryFileIO).Context("path", clean).Build()
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", secretError("secret file is empty", "path", clean)
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with environment
// references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}
