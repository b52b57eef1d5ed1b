package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("SONOSCAN_TEST_TOKEN", "abc")
	t.Setenv("SONOSCAN_TEST_EMPTY", "")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"literal", "literal", false},
		{"${SONOSCAN_TEST_TOKEN}", "abc", false},
		{"pre-${SONOSCAN_TEST_TOKEN}-post", "pre-abc-post", false},
		{"${SONOSCAN_TEST_EMPTY:-fallback}", "fallback", false},
		{"${SONOSCAN_TEST_UNSET:-}", "", false},
		{"${SONOSCAN_TEST_UNSET}", "", true},
	}
	for _, tt := range tests {
		got, err := ExpandString(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
			assert.Contains(t, err.Error(), "SONOSCAN_TEST_UNSET")
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
		return p
	}

	got, err := ReadFile(write("token", " s3cret \r\n"))
	require.NoError(t, err)
	assert.Equal(t, " s3cret ", got, "only line endings are trimmed")

	_, err = ReadFile(write("empty", "\n"))
	assert.Error(t, err)

	_, err = ReadFile(write("big", string(make([]byte, maxSecretFileSize+1))))
	assert.Error(t, err)

	_, err = ReadFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = ReadFile(dir)
	assert.Error(t, err, "directories are rejected")

	_, err = ReadFile("")
	assert.Error(t, err)
}

func TestResolvePrefersFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(p, []byte("from-file\n"), 0o600))
	t.Setenv("SONOSCAN_TEST_PW", "from-env")

	got, err := Resolve(p, "${SONOSCAN_TEST_PW}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, err = Resolve("", "${SONOSCAN_TEST_PW}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
