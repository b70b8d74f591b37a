package cli

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"openpoints/internal/tracker"
)

// EditCmd returns the edit command.
func (a *App) EditCmd() *Command {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.StringP("topic", "t", "", "New topic")
	fs.StringP("owner", "o", "", "New owner")
	fs.StringP("status", "s", "", "New status")
	fs.StringP("date", "d", "", "New target resolution date (YYYY-MM-DD)")

	return &Command{
		Flags: fs,
		Usage: "edit <id> [flags]",
		Short: "Edit a point in place",
		Long: "Overwrite the editable fields (topic, owner, status, target date) of a record. " +
			"Fields without a flag keep their current value; a malformed date is replaced with today. " +
			"Closing fields are never touched by edit.",
		Exec: func(o *IO, args []string) error {
			id, idErr := parseRecordID(args)
			if idErr != nil {
				return idErr
			}

			records, loadErr := a.Store.Load()
			if loadErr != nil {
				return loadErr
			}

			idx := tracker.FindByID(records, id)
			if idx < 0 {
				return fmt.Errorf("%w: id %d", tracker.ErrRecordNotFound, id)
			}

			current := records[idx]

			in := tracker.EditInput{
				Topic:                current.Topic,
				Owner:                current.Owner,
				Status:               current.Status,
				TargetResolutionDate: current.TargetResolutionDate,
			}

			if fs.Changed("topic") {
				in.Topic, _ = fs.GetString("topic")
			}

			if fs.Changed("owner") {
				in.Owner, _ = fs.GetString("owner")
			}

			if fs.Changed("status") {
				in.Status, _ = fs.GetString("status")
			}

			if fs.Changed("date") {
				in.TargetResolutionDate, _ = fs.GetString("date")
			}

			state, reqErr := a.Ctrl.RequestEdit(a.Actor, tracker.SessionState{}, id)
			if reqErr != nil {
				return reqErr
			}

			_, editErr := a.Ctrl.SaveEdit(a.Actor, state, in)
			if editErr != nil {
				return editErr
			}

			o.Println("Updated", id)

			return nil
		},
	}
}
