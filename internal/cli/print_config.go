package cli

import (
	"encoding/json"
	"fmt"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func (a *App) PrintConfigCmd() *Command {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "print-config",
		Short: "Print resolved configuration",
		Exec: func(o *IO, _ []string) error {
			formatted, err := json.MarshalIndent(a.Cfg, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting config: %w", err)
			}

			o.Println(string(formatted))

			o.Println("")
			o.Println("# Sources:")

			if a.Cfg.Sources.Global != "" {
				o.Println("#   global:", a.Cfg.Sources.Global)
			}

			if a.Cfg.Sources.Project != "" {
				o.Println("#   project:", a.Cfg.Sources.Project)
			}

			if a.Cfg.Sources.Global == "" && a.Cfg.Sources.Project == "" {
				o.Println("#   (using defaults only)")
			}

			return nil
		},
	}
}
