package cli

import (
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"openpoints/internal/tracker"
)

// CloseCmd returns the close command.
func (a *App) CloseCmd() *Command {
	fs := flag.NewFlagSet("close", flag.ContinueOnError)
	fs.StringP("comment", "m", "", "Closing comment")
	fs.String("by", "", "Closed by (default: acting user)")

	return &Command{
		Flags: fs,
		Usage: "close <id> [flags]",
		Short: "Close an open point",
		Long:  "Set the record's status to Closed, record the closing comment and closer, and stamp today's date as the actual resolution date.",
		Exec: func(o *IO, args []string) error {
			id, idErr := parseRecordID(args)
			if idErr != nil {
				return idErr
			}

			comment, _ := fs.GetString("comment")

			closedBy, _ := fs.GetString("by")
			if closedBy == "" {
				closedBy = a.Actor.Name
			}

			state, reqErr := a.Ctrl.RequestClose(a.Actor, tracker.SessionState{}, id)
			if reqErr != nil {
				return reqErr
			}

			_, closeErr := a.Ctrl.ConfirmClose(a.Actor, state, tracker.CloseInput{
				Comment:  comment,
				ClosedBy: closedBy,
			})
			if closeErr != nil {
				return closeErr
			}

			o.Println("Closed", id)

			return nil
		},
	}
}

// parseRecordID reads the record ID from the first positional
// argument.
func parseRecordID(args []string) (int, error) {
	if len(args) == 0 {
		return 0, tracker.ErrRecordIDRequired
	}

	id, err := strconv.Atoi(strings.TrimSpace(args[0]))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a record ID", tracker.ErrRecordIDRequired, args[0])
	}

	return id, nil
}
