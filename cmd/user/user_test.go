package user

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sonoscan/sonoscan/internal/auth"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
)

func TestReadPassword(t *testing.T) {
	pw, err := readPassword(strings.NewReader("S3cret!pass\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "S3cret!pass", pw)

	pw, err = readPassword(strings.NewReader("NoNewline1!"))
	require.NoError(t, err)
	assert.Equal(t, "NoNewline1!", pw)

	_, err = readPassword(strings.NewReader("\n"))
	assert.True(t, errors.IsValidation(err))
}

func TestAddUser(t *testing.T) {
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = datastore.MemoryPath
	store := &datastore.SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })

	accounts := auth.NewService(store, []string{"root"})
	accounts.Cost = bcrypt.MinCost

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	require.NoError(t, addUser(cmd, accounts, "root", "Str0ng!Pass"))
	assert.Equal(t, "created admin root\n", out.String())

	err := addUser(cmd, accounts, "root", "Str0ng!Pass")
	assert.True(t, errors.IsConflict(err))

	err = addUser(cmd, accounts, "carol", "short")
	assert.True(t, errors.IsValidation(err))
	assert.True(t, accounts.Authenticate(context.Background(), "root", "Str0ng!Pass"))
}
