package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"openpoints/internal/tracker"
)

// SessionCmd returns the interactive session command.
func (a *App) SessionCmd() *Command {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "session",
		Short: "Interactive session",
		Long: "Open an interactive loop over the record table. At most one close or edit " +
			"is pending at any time; requesting a new one replaces the old (last request wins).",
		Exec: func(o *IO, _ []string) error {
			sess := &session{app: a, o: o}

			if file, ok := a.Stdin.(*os.File); ok && isTerminal(file) {
				return sess.runInteractive()
			}

			// Non-terminal input: read scripted commands line by line.
			stdin := a.Stdin
			if stdin == nil {
				stdin = strings.NewReader("")
			}

			return sess.run(&scriptPrompter{scanner: bufio.NewScanner(stdin)})
		},
	}
}

// prompter abstracts line input so the loop can be driven by liner or
// by scripted input in tests.
type prompter interface {
	Prompt(prompt string) (string, error)
}

type scriptPrompter struct {
	scanner *bufio.Scanner
}

func (p *scriptPrompter) Prompt(string) (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return p.scanner.Text(), nil
}

// linerPrompter wraps liner with history support.
type linerPrompter struct {
	state *liner.State
}

func (p *linerPrompter) Prompt(prompt string) (string, error) {
	line, err := p.state.Prompt(prompt)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(line) != "" {
		p.state.AppendHistory(line)
	}

	return line, nil
}

var sessionCommands = []string{
	"open", "closed", "submit", "close", "edit", "confirm", "cancel",
	"status", "log", "help", "quit",
}

// session holds the loop state. The workflow state lives in an
// explicit SessionState value updated by each controller call, never
// in package globals.
type session struct {
	app   *App
	o     *IO
	state tracker.SessionState
}

// historyFile returns the path to the session history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".op_history")
}

// runInteractive runs the loop on a terminal with readline-style
// input.
func (s *session) runInteractive() error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var matches []string

		for _, cmd := range sessionCommands {
			if strings.HasPrefix(cmd, strings.ToLower(prefix)) {
				matches = append(matches, cmd)
			}
		}

		return matches
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	runErr := s.run(&linerPrompter{state: line})

	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}

	return runErr
}

// run is the command loop. Errors from individual actions are printed
// and the loop continues; only input errors end the session.
func (s *session) run(in prompter) error {
	s.o.Printf("op session (%s)\n", s.app.Cfg.CSVFile)
	s.o.Println("Type 'help' for available commands.")

	for {
		raw, promptErr := in.Prompt("op> ")
		if promptErr != nil {
			if errors.Is(promptErr, io.EOF) || errors.Is(promptErr, liner.ErrPromptAborted) {
				s.o.Println("bye")

				return nil
			}

			return fmt.Errorf("reading input: %w", promptErr)
		}

		parts := strings.Fields(raw)
		if len(parts) == 0 {
			continue
		}

		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			s.o.Println("bye")

			return nil
		}

		actionErr := s.dispatch(in, cmd, args)
		if actionErr != nil {
			s.o.ErrPrintln("error:", actionErr)
		}
	}
}

func (s *session) dispatch(in prompter, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil

	case "open":
		return s.listRecords(false)

	case "closed":
		return s.listRecords(true)

	case "submit":
		return s.submit(in)

	case "close":
		return s.requestClose(args)

	case "edit":
		return s.requestEdit(args)

	case "confirm":
		return s.confirm(in)

	case "cancel":
		s.state = s.app.Ctrl.Cancel(s.state)
		s.o.Println("cancelled")

		return nil

	case "status":
		s.printStatus()
		return nil

	case "log":
		return s.showLog()

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (s *session) printHelp() {
	s.o.Println("Commands:")
	s.o.Println("  open               List open points")
	s.o.Println("  closed             List closed points")
	s.o.Println("  submit             Submit a new point (prompts for fields)")
	s.o.Println("  close <id>         Select a point for closing")
	s.o.Println("  edit <id>          Select a point for editing")
	s.o.Println("  confirm            Apply the pending close or edit (prompts)")
	s.o.Println("  cancel             Abandon the pending selection")
	s.o.Println("  status             Show the pending selection")
	s.o.Println("  log                View the audit log (admin)")
	s.o.Println("  quit               Leave the session")
}

func (s *session) listRecords(closed bool) error {
	records, err := s.app.Store.Load()
	if err != nil {
		return err
	}

	if closed {
		records = tracker.FilterClosed(records)
	} else {
		records = tracker.FilterOpen(records)
	}

	if len(records) == 0 {
		s.o.Println("no records")

		return nil
	}

	renderTable(s.o, records, closed)

	return nil
}

func (s *session) submit(in prompter) error {
	topic, err := in.Prompt("topic: ")
	if err != nil {
		return err
	}

	owner, err := in.Prompt("owner: ")
	if err != nil {
		return err
	}

	status, err := in.Prompt("status: ")
	if err != nil {
		return err
	}

	date, err := in.Prompt("target date (YYYY-MM-DD): ")
	if err != nil {
		return err
	}

	if strings.TrimSpace(status) == "" {
		status = "New"
	}

	rec, submitErr := s.app.Ctrl.Submit(s.app.Actor, tracker.SubmitInput{
		Topic:                topic,
		Owner:                owner,
		Status:               status,
		TargetResolutionDate: date,
	})
	if submitErr != nil {
		return submitErr
	}

	s.o.Println("Submitted", rec.ID)

	return nil
}

func (s *session) requestClose(args []string) error {
	id, idErr := parseRecordID(args)
	if idErr != nil {
		return idErr
	}

	state, err := s.app.Ctrl.RequestClose(s.app.Actor, s.state, id)
	if err != nil {
		return err
	}

	s.state = state
	s.o.Printf("close pending for %d ('confirm' to apply, 'cancel' to abandon)\n", id)

	return nil
}

func (s *session) requestEdit(args []string) error {
	id, idErr := parseRecordID(args)
	if idErr != nil {
		return idErr
	}

	state, err := s.app.Ctrl.RequestEdit(s.app.Actor, s.state, id)
	if err != nil {
		return err
	}

	s.state = state
	s.o.Printf("edit pending for %d ('confirm' to apply, 'cancel' to abandon)\n", id)

	return nil
}

func (s *session) confirm(in prompter) error {
	switch s.state.Kind {
	case tracker.PendingClose:
		return s.confirmClose(in)
	case tracker.PendingEdit:
		return s.confirmEdit(in)
	default:
		return errors.New("nothing is pending ('close <id>' or 'edit <id>' first)")
	}
}

func (s *session) confirmClose(in prompter) error {
	comment, err := in.Prompt("closing comment: ")
	if err != nil {
		return err
	}

	closedBy, err := in.Prompt("closed by: ")
	if err != nil {
		return err
	}

	if strings.TrimSpace(closedBy) == "" {
		closedBy = s.app.Actor.Name
	}

	target := s.state.TargetID

	state, closeErr := s.app.Ctrl.ConfirmClose(s.app.Actor, s.state, tracker.CloseInput{
		Comment:  comment,
		ClosedBy: closedBy,
	})

	s.state = state

	if closeErr != nil {
		return closeErr
	}

	s.o.Println("Closed", target)

	return nil
}

// confirmEdit prompts for the four editable fields. An empty answer
// keeps the current value.
func (s *session) confirmEdit(in prompter) error {
	records, loadErr := s.app.Store.Load()
	if loadErr != nil {
		return loadErr
	}

	missingID := s.state.TargetID

	idx := tracker.FindByID(records, missingID)
	if idx < 0 {
		s.state = s.app.Ctrl.Cancel(s.state)

		return fmt.Errorf("%w: id %d", tracker.ErrRecordNotFound, missingID)
	}

	current := records[idx]

	input := tracker.EditInput{
		Topic:                current.Topic,
		Owner:                current.Owner,
		Status:               current.Status,
		TargetResolutionDate: current.TargetResolutionDate,
	}

	prompts := []struct {
		label string
		value *string
	}{
		{"topic", &input.Topic},
		{"owner", &input.Owner},
		{"status", &input.Status},
		{"target date", &input.TargetResolutionDate},
	}

	for _, p := range prompts {
		answer, promptErr := in.Prompt(fmt.Sprintf("%s [%s]: ", p.label, *p.value))
		if promptErr != nil {
			return promptErr
		}

		if strings.TrimSpace(answer) != "" {
			*p.value = answer
		}
	}

	target := s.state.TargetID

	state, editErr := s.app.Ctrl.SaveEdit(s.app.Actor, s.state, input)

	s.state = state

	if editErr != nil {
		return editErr
	}

	s.o.Println("Updated", target)

	return nil
}

func (s *session) printStatus() {
	switch s.state.Kind {
	case tracker.PendingClose:
		s.o.Printf("close pending for %d\n", s.state.TargetID)
	case tracker.PendingEdit:
		s.o.Printf("edit pending for %d\n", s.state.TargetID)
	default:
		s.o.Println("idle")
	}
}

func (s *session) showLog() error {
	if !tracker.CanViewLog(s.app.Actor.Role) {
		return tracker.ErrLogNotAllowed
	}

	if s.app.Audit == nil {
		s.o.Println("no audit log configured")

		return nil
	}

	events, err := s.app.Audit.Read()
	if err != nil {
		return err
	}

	if len(events) == 0 {
		s.o.Println("no audit entries")

		return nil
	}

	for _, ev := range events {
		s.o.Printf("%s  %s  %s: %q -> %q\n",
			ev.Time.UTC().Format(time.RFC3339), ev.Editor, ev.Field, ev.Before, ev.After)
	}

	return nil
}
