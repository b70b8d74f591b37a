// Package tracker provides the open-points record store and the
// edit/close workflow on top of a flat CSV table.
package tracker

import (
	"strconv"
	"strings"
	"time"
)

// Record is one topic/issue entry.
//
// ID is the durable key: a positive integer assigned once at creation
// and persisted as the first CSV column. RowID is the ephemeral
// load-order index (0..n-1); it is reassigned on every load and never
// written to disk, so it must not be used to identify a record across
// a save/reload boundary.
type Record struct {
	ID    int
	RowID int

	Topic                string
	Owner                string
	Status               string
	TargetResolutionDate string
	ClosingComment       string
	ClosedBy             string
	ActualResolutionDate string
}

// Header is the canonical column set of the backing file, in order.
// The seven semantic columns match the source tool's files; ID is
// prepended as the stable key.
var Header = []string{
	"ID",
	"Topic",
	"Owner",
	"Status",
	"Target Resolution Date",
	"Closing Comment",
	"Closed By",
	"Actual Resolution Date",
}

// ExportHeader is the column set of derived read-only exports:
// the semantic columns without the identifier.
var ExportHeader = Header[1:]

// DateLayout is the serialization format for all dates. Dates carry no
// time component; an empty date serializes as an empty field.
const DateLayout = "2006-01-02"

// IsClosed reports whether the record is in the closed partition.
// The partition is total and exclusive: a record is closed iff its
// status equals "closed" case-insensitively, open otherwise.
func (r Record) IsClosed() bool {
	return strings.EqualFold(strings.TrimSpace(r.Status), StatusClosed)
}

// row serializes the record to a CSV row in canonical column order.
func (r Record) row() []string {
	return []string{
		strconv.Itoa(r.ID),
		r.Topic,
		r.Owner,
		r.Status,
		r.TargetResolutionDate,
		r.ClosingComment,
		r.ClosedBy,
		r.ActualResolutionDate,
	}
}

// exportRow serializes the record without the identifier.
func (r Record) exportRow() []string {
	return r.row()[1:]
}

// NormalizeDate returns value formatted as an ISO date if it parses,
// and today's date otherwise. Callers rely on this to keep the
// workflow non-blocking: a malformed date is substituted, not
// rejected.
func NormalizeDate(value string, now func() time.Time) string {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return now().Format(DateLayout)
	}

	return parsed.Format(DateLayout)
}

// FilterOpen returns the records whose status is not "closed",
// preserving order.
func FilterOpen(records []Record) []Record {
	open := make([]Record, 0, len(records))

	for _, rec := range records {
		if !rec.IsClosed() {
			open = append(open, rec)
		}
	}

	return open
}

// FilterClosed returns the records whose status is "closed",
// preserving order.
func FilterClosed(records []Record) []Record {
	closed := make([]Record, 0, len(records))

	for _, rec := range records {
		if rec.IsClosed() {
			closed = append(closed, rec)
		}
	}

	return closed
}

// FindByID returns the index of the record with the given ID, or -1.
func FindByID(records []Record, id int) int {
	for idx, rec := range records {
		if rec.ID == id {
			return idx
		}
	}

	return -1
}
