package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResolvesSecretReferences(t *testing.T) {
	t.Setenv("SONOSCAN_TEST_DB_PASSWORD", "hunter2")
	secretFile := filepath.Join(t.TempDir(), "session")
	require.NoError(t, os.WriteFile(secretFile, []byte("0123456789abcdef0123456789abcdef\n"), 0o600))

	s, err := loadFrom(t, `
security:
  sessionsecret: inline-value-is-ignored
  sessionsecretfile: `+secretFile+`
output:
  mysql:
    password: ${SONOSCAN_TEST_DB_PASSWORD}
`)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", s.Security.SessionSecret)
	assert.Equal(t, "hunter2", s.Output.MySQL.Password)
}

func TestLoadFailsOnUnsetSecretVariable(t *testing.T) {
	_, err := loadFrom(t, `
sentry:
  dsn: ${SONOSCAN_TEST_UNSET_DSN}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentry.dsn")
	assert.Contains(t, err.Error(), "SONOSCAN_TEST_UNSET_DSN")
}
