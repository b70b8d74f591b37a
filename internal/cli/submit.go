package cli

import (
	flag "github.com/spf13/pflag"

	"openpoints/internal/tracker"
)

// SubmitCmd returns the submit command.
func (a *App) SubmitCmd() *Command {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.StringP("topic", "t", "", "Topic (required)")
	fs.StringP("owner", "o", "", "Owner")
	fs.StringP("status", "s", "New", "Status")
	fs.StringP("date", "d", "", "Target resolution date (YYYY-MM-DD, default today)")

	return &Command{
		Flags: fs,
		Usage: "submit -t <topic> [flags]",
		Short: "Submit a new open point",
		Long:  "Submit a new open point. The record is appended with empty closing fields and prints its assigned ID.",
		Exec: func(o *IO, _ []string) error {
			topic, _ := fs.GetString("topic")
			owner, _ := fs.GetString("owner")
			status, _ := fs.GetString("status")
			date, _ := fs.GetString("date")

			rec, err := a.Ctrl.Submit(a.Actor, tracker.SubmitInput{
				Topic:                topic,
				Owner:                owner,
				Status:               status,
				TargetResolutionDate: date,
			})
			if err != nil {
				return err
			}

			o.Println("Submitted", rec.ID)

			return nil
		},
	}
}
