package cli

import (
	flag "github.com/spf13/pflag"

	"openpoints/internal/tracker"
)

// OpenCmd returns the open-points listing command.
func (a *App) OpenCmd() *Command {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	fs.Bool("export", false, "Write raw CSV instead of a table")

	return &Command{
		Flags: fs,
		Usage: "open [--export]",
		Short: "List open points",
		Long:  "List all records whose status is not \"closed\". --export writes the partition as CSV in the canonical column layout.",
		Exec: func(o *IO, _ []string) error {
			return a.list(o, fs, false)
		},
	}
}

// ClosedCmd returns the closed-points listing command.
func (a *App) ClosedCmd() *Command {
	fs := flag.NewFlagSet("closed", flag.ContinueOnError)
	fs.Bool("export", false, "Write raw CSV instead of a table")

	return &Command{
		Flags: fs,
		Usage: "closed [--export]",
		Short: "List closed points",
		Long:  "List all records whose status is \"closed\". --export writes the partition as CSV in the canonical column layout.",
		Exec: func(o *IO, _ []string) error {
			return a.list(o, fs, true)
		},
	}
}

func (a *App) list(o *IO, fs *flag.FlagSet, closed bool) error {
	records, err := a.Store.Load()
	if err != nil {
		return err
	}

	if closed {
		records = tracker.FilterClosed(records)
	} else {
		records = tracker.FilterOpen(records)
	}

	export, _ := fs.GetBool("export")
	if export {
		o.flushWarningsStart()

		return tracker.ExportCSV(o.out, records)
	}

	if len(records) == 0 {
		o.Println("no records")

		return nil
	}

	renderTable(o, records, closed)

	return nil
}
