package user

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sonoscan/sonoscan/internal/auth"
	"github.com/sonoscan/sonoscan/internal/conf"
	"github.com/sonoscan/sonoscan/internal/datastore"
	"github.com/sonoscan/sonoscan/internal/errors"
)

// Command creates the user command group.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(addCommand(ctx))
	return cmd
}

func addCommand(ctx *conf.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "add <username>",
		Short: "Create an account, reading the password from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			store, err := datastore.New(ctx.Settings)
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			return addUser(cmd, auth.NewService(store, ctx.Settings.Security.AdminUsers), args[0], password)
		},
	}
}

func addUser(cmd *cobra.Command, accounts *auth.Service, username, password string) error {
	created, err := accounts.Register(cmd.Context(), username, password)
	if err != nil {
		return err
	}
	if !created {
		return errors.Newf("user %q already exists", username).
			Component("cli").
			Category(errors.CategoryConflict).
			Build()
	}
	role := "user"
	if accounts.IsAdmin(username) {
		role = "admin"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s %s\n", role, username)
	return nil
}

// readPassword takes the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", errors.New(err).
			Component("cli").
			Category(errors.CategoryFileIO).
			Build()
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.ValidationError("cli", "a password is required on stdin")
	}
	return password, nil
}
