// Package cli implements the op command line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"openpoints/internal/tracker"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownFlag     = errors.New("unknown flag")
)

// App bundles the resolved configuration and collaborators for one
// invocation.
type App struct {
	Cfg   tracker.Config
	Store *tracker.Store
	Ctrl  *tracker.Controller
	Users *tracker.Users
	Audit *tracker.AuditLog
	Actor tracker.User
	Log   *slog.Logger
	Stdin io.Reader
	Env   map[string]string
}

// Run is the main entry point. Returns exit code.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	cfg, err := tracker.LoadConfig(tracker.LoadConfigInput{
		WorkDirOverride: flags.workDir,
		ConfigPath:      flags.configPath,
		CSVFileOverride: flags.csvFile,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	logger := newLogger(errOut, flags.verbose)

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	cmd := flags.remaining[0]
	if cmd == "-h" || cmd == helpFlag {
		printUsage(out)

		return 0
	}

	app, appErr := newApp(cfg, logger, stdin, flags.user, env)
	if appErr != nil {
		fprintln(errOut, "error:", appErr)

		return 1
	}

	ioCtx := NewIO(out, errOut)

	for _, command := range app.Commands() {
		if command.Name() != cmd {
			continue
		}

		code := command.Run(ioCtx, flags.remaining[1:])
		if code != 0 {
			return code
		}

		return ioCtx.Finish()
	}

	fprintln(errOut, "error: unknown command:", cmd)
	printUsage(errOut)

	return 1
}

// newApp wires the store, controller, and collaborators and resolves
// the acting user.
func newApp(cfg tracker.Config, logger *slog.Logger, stdin io.Reader, userFlag string, env map[string]string) (*App, error) {
	store := tracker.NewStore(cfg.CSVFileAbs)
	store.SeedPath = cfg.SeedFileAbs
	store.Log = logger

	var audit *tracker.AuditLog
	if cfg.AuditFileAbs != "" {
		audit = tracker.NewAuditLog(cfg.AuditFileAbs)
	}

	app := &App{
		Cfg:   cfg,
		Store: store,
		Ctrl:  &tracker.Controller{Store: store, Audit: audit},
		Audit: audit,
		Log:   logger,
		Stdin: stdin,
		Env:   env,
	}

	if cfg.UsersFileAbs == "" {
		// Single-operator mode: no user table, implicit admin.
		name := env["USER"]
		if name == "" {
			name = "operator"
		}

		app.Actor = tracker.User{Name: name, Role: tracker.RoleAdmin}

		return app, nil
	}

	app.Users = tracker.NewUsers(cfg.UsersFileAbs)

	if userFlag == "" {
		// No login: read-only access.
		app.Actor = tracker.User{Name: "anonymous", Role: tracker.RoleUser}

		return app, nil
	}

	actor, authErr := app.Users.Authenticate(userFlag, env["OP_PASSWORD"])
	if authErr != nil {
		return nil, authErr
	}

	app.Actor = actor

	return app, nil
}

// Commands returns every registered command.
func (a *App) Commands() []*Command {
	return []*Command{
		a.SubmitCmd(),
		a.OpenCmd(),
		a.ClosedCmd(),
		a.CloseCmd(),
		a.EditCmd(),
		a.LogCmd(),
		a.UserCmd(),
		a.SessionCmd(),
		a.PrintConfigCmd(),
	}
}

func printUsage(w io.Writer) {
	fprintln(w, "Usage: op [global flags] <command> [args]")
	fprintln(w, "")
	fprintln(w, "Track open points in a flat CSV table.")
	fprintln(w, "")
	fprintln(w, "Commands:")
	fprintln(w, "  submit -t <topic> [flags]  Submit a new open point")
	fprintln(w, "  open [--export]            List open points")
	fprintln(w, "  closed [--export]          List closed points")
	fprintln(w, "  close <id> [flags]         Close an open point")
	fprintln(w, "  edit <id> [flags]          Edit a point in place")
	fprintln(w, "  log                        View the audit log (admin)")
	fprintln(w, "  user add <name> [flags]    Add a user to the user table")
	fprintln(w, "  session                    Interactive session")
	fprintln(w, "  print-config               Print resolved configuration")
	fprintln(w, "")
	fprintln(w, "Global flags:")
	fprintln(w, "  -C, --cwd <dir>            Run as if started in <dir>")
	fprintln(w, "  -c, --config <file>        Explicit config file")
	fprintln(w, "      --csv <file>           Backing CSV file override")
	fprintln(w, "  -u, --user <name>          Log in as <name> (password from $OP_PASSWORD)")
	fprintln(w, "  -v, --verbose              Debug logging on stderr")
}

type globalFlags struct {
	workDir    string
	configPath string
	csvFile    string
	user       string
	verbose    bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args
// consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	// --csv flag
	if arg == "--csv" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.csvFile = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--csv="); ok {
		flags.csvFile = after

		return consumedOne, nil
	}

	// -u/--user flag
	if arg == "-u" || arg == "--user" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.user = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--user="); ok {
		flags.user = after

		return consumedOne, nil
	}

	// -v/--verbose flag
	if arg == "-v" || arg == "--verbose" {
		flags.verbose = true

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", errUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
