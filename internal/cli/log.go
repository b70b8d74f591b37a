package cli

import (
	"time"

	flag "github.com/spf13/pflag"

	"openpoints/internal/tracker"
)

// LogCmd returns the audit log view command.
func (a *App) LogCmd() *Command {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "log",
		Short: "View the audit log (admin)",
		Long:  "Print the append-only trail of field changes. Restricted to the admin role.",
		Exec: func(o *IO, _ []string) error {
			if !tracker.CanViewLog(a.Actor.Role) {
				return tracker.ErrLogNotAllowed
			}

			if a.Audit == nil {
				o.Println("no audit log configured")

				return nil
			}

			events, err := a.Audit.Read()
			if err != nil {
				return err
			}

			if len(events) == 0 {
				o.Println("no audit entries")

				return nil
			}

			for _, ev := range events {
				o.Printf("%s  %s  %s: %q -> %q\n",
					ev.Time.UTC().Format(time.RFC3339), ev.Editor, ev.Field, ev.Before, ev.After)
			}

			return nil
		},
	}
}
