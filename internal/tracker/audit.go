package tracker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"
)

// auditHeader is the column layout of the audit trail file.
var auditHeader = []string{"Timestamp", "Editor", "Field", "Before", "After"}

// AuditEvent is one append-only entry: a tracked field changed by an
// edit.
type AuditEvent struct {
	Time   time.Time
	Editor string
	Field  string
	Before string
	After  string
}

// AuditLog is an append-only CSV trail of field changes. Entries are
// never rewritten or removed; each Append is a single O_APPEND write
// of one fully formed row.
type AuditLog struct {
	Path string
}

// NewAuditLog creates an audit log backed by the given file.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{Path: path}
}

// Append adds one event to the trail, creating the file with its
// header on first use.
func (a *AuditLog) Append(ev AuditEvent) error {
	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)

	_, statErr := os.Stat(a.Path)
	if statErr != nil {
		if !os.IsNotExist(statErr) {
			return fmt.Errorf("appending audit event: %w", statErr)
		}

		headerErr := writer.Write(auditHeader)
		if headerErr != nil {
			return fmt.Errorf("appending audit event: %w", headerErr)
		}
	}

	rowErr := writer.Write([]string{
		ev.Time.UTC().Format(time.RFC3339),
		ev.Editor,
		ev.Field,
		ev.Before,
		ev.After,
	})
	if rowErr != nil {
		return fmt.Errorf("appending audit event: %w", rowErr)
	}

	writer.Flush()

	flushErr := writer.Error()
	if flushErr != nil {
		return fmt.Errorf("appending audit event: %w", flushErr)
	}

	file, openErr := os.OpenFile(a.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerms)
	if openErr != nil {
		return fmt.Errorf("appending audit event: %w", openErr)
	}

	_, copyErr := io.Copy(file, &buf)
	if copyErr != nil {
		_ = file.Close()

		return fmt.Errorf("appending audit event: %w", copyErr)
	}

	closeErr := file.Close()
	if closeErr != nil {
		return fmt.Errorf("appending audit event: %w", closeErr)
	}

	return nil
}

// Read returns all events in append order. A missing file is an empty
// trail, not an error.
func (a *AuditLog) Read() ([]AuditEvent, error) {
	data, readErr := os.ReadFile(a.Path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return []AuditEvent{}, nil
		}

		return nil, fmt.Errorf("reading audit log: %w", readErr)
	}

	rows, parseErr := readCSV(data)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing audit log: %w", parseErr)
	}

	events := make([]AuditEvent, 0, len(rows))

	for i, row := range rows {
		if i == 0 {
			continue // header
		}

		padded := make([]string, len(auditHeader))
		copy(padded, row)

		ts, _ := time.Parse(time.RFC3339, padded[0])

		events = append(events, AuditEvent{
			Time:   ts,
			Editor: padded[1],
			Field:  padded[2],
			Before: padded[3],
			After:  padded[4],
		})
	}

	return events, nil
}
