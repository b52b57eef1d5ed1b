package conf

import (
	"fmt"

	"github.com/sonoscan/sonoscan/internal/secrets"
)

// resolveSecrets replaces credential settings with their resolved values. A *file
// setting wins over the inline value, which may reference environment variables.
func resolveSecrets(s *Settings) error {
	fields := []struct {
		name  string
		file  string
		value *string
	}{
		{"security.sessionsecret", s.Security.SessionSecretFile, &s.Security.SessionSecret},
		{"output.mysql.password", s.Output.MySQL.PasswordFile, &s.Output.MySQL.Password},
		{"sentry.dsn", s.Sentry.DSNFile, &s.Sentry.DSN},
	}
	for _, f := range fields {
		v, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", f.name, err)
		}
		*f.value = v
	}
	return nil
}
