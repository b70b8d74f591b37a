package cli

import (
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"openpoints/internal/tracker"
)

var (
	errUsersFileNotConfigured = errors.New("no users_file configured")
	errUserSubcommand         = errors.New("usage: op user add <name> [flags]")
	errPasswordRequired       = errors.New("password is required (set $OP_NEW_PASSWORD or --password)")
)

// UserCmd returns the user table maintenance command.
func (a *App) UserCmd() *Command {
	fs := flag.NewFlagSet("user", flag.ContinueOnError)
	fs.StringP("role", "r", tracker.RoleUser, "Role (admin|editor|user)")
	fs.String("password", "", "Password (prefer $OP_NEW_PASSWORD)")

	return &Command{
		Flags: fs,
		Usage: "user add <name> [flags]",
		Short: "Add a user to the user table",
		Long: "Add a user with a bcrypt-hashed password to the users file. " +
			"The first user can be added by anyone (bootstrap); afterwards only admins may add users.",
		Exec: func(o *IO, args []string) error {
			if len(args) != 2 || args[0] != "add" {
				return errUserSubcommand
			}

			if a.Users == nil {
				return errUsersFileNotConfigured
			}

			name := args[1]

			role, _ := fs.GetString("role")

			password, _ := fs.GetString("password")
			if password == "" {
				password = a.Env["OP_NEW_PASSWORD"]
			}

			if password == "" {
				return errPasswordRequired
			}

			// Bootstrap: an empty or missing users file accepts the
			// first user unauthenticated.
			empty, emptyErr := a.Users.Empty()
			if emptyErr != nil {
				return emptyErr
			}

			if !empty && a.Actor.Role != tracker.RoleAdmin {
				return fmt.Errorf("%w: only admins can add users", tracker.ErrWriteNotAllowed)
			}

			addErr := a.Users.Add(name, password, role)
			if addErr != nil {
				return addErr
			}

			o.Println("Added user", name, "with role", role)

			return nil
		},
	}
}
