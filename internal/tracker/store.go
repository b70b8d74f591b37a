package tracker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
)

const filePerms = 0o600

// Store owns the authoritative record table. Every operation is a full
// O(n) scan or rewrite of the backing CSV file; the table is expected
// to stay in the tens-to-low-thousands of rows, so there is no index.
//
// Reads go through a single-slot cache that Save, Append, and Update
// invalidate synchronously before they return, so a load issued after
// a write always observes the write. The advisory file lock in lock.go
// serializes writers on the same filesystem, and Update holds it
// across the whole load-mutate-save span; writers on filesystems
// without flock semantics still race last-writer-wins.
type Store struct {
	// Path is the backing CSV file.
	Path string

	// SeedPath is an optional alternate import source, consumed only
	// when Path does not exist yet. Its "Resolution Date" column is
	// renamed to "Target Resolution Date" and the closing columns are
	// added empty; nothing is written until the first save.
	SeedPath string

	// Log receives seed/backfill notices. Nil means discard.
	Log *slog.Logger

	mu         sync.Mutex
	cache      []Record
	cacheValid bool
}

// NewStore creates a store for the given backing file.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

func (s *Store) logger() *slog.Logger {
	if s.Log == nil {
		return slog.New(slog.DiscardHandler)
	}

	return s.Log
}

// Load reads the backing file and returns the normalized table.
//
// Guarantees: every row has all canonical columns (missing ones
// backfilled with ""), every row has a positive ID (legacy files
// without an ID column get 1..n in file order, persisted on the next
// save), and RowID is a fresh 0..n-1 in file order. A missing backing
// file is not an error: the seed file is imported if configured,
// otherwise an empty table is returned. Repeated calls without an
// intervening write return equal tables.
func (s *Store) Load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cacheValid {
		return copyRecords(s.cache), nil
	}

	records, err := s.loadFromDisk()
	if err != nil {
		return nil, err
	}

	s.cache = records
	s.cacheValid = true

	return copyRecords(records), nil
}

func (s *Store) loadFromDisk() ([]Record, error) {
	data, readErr := os.ReadFile(s.Path)
	if readErr != nil {
		if !os.IsNotExist(readErr) {
			return nil, fmt.Errorf("reading record file: %w", readErr)
		}

		s.logger().Debug("record file not found", "path", s.Path)

		if s.SeedPath != "" {
			return s.loadSeed()
		}

		return []Record{}, nil
	}

	return parseTable(data)
}

// loadSeed imports the alternate seed source. The seed table is only
// materialized in memory; it reaches the backing file on the first
// save.
func (s *Store) loadSeed() ([]Record, error) {
	data, readErr := os.ReadFile(s.SeedPath)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return []Record{}, nil
		}

		return nil, fmt.Errorf("reading seed file: %w", readErr)
	}

	rows, parseErr := readCSV(data)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing seed file: %w", parseErr)
	}

	if len(rows) == 0 {
		return []Record{}, nil
	}

	columns := indexColumns(rows[0])

	records := make([]Record, 0, len(rows)-1)

	for i, row := range rows[1:] {
		rec := Record{
			ID:     i + 1,
			RowID:  i,
			Topic:  columnValue(row, columns, "Topic"),
			Owner:  columnValue(row, columns, "Owner"),
			Status: columnValue(row, columns, "Status"),
		}

		// The seed's "Resolution Date" becomes the target date.
		rec.TargetResolutionDate = columnValue(row, columns, "Resolution Date")
		if rec.TargetResolutionDate == "" {
			rec.TargetResolutionDate = columnValue(row, columns, "Target Resolution Date")
		}

		records = append(records, rec)
	}

	s.logger().Info("seeded records from import file", "path", s.SeedPath, "records", len(records))

	return records, nil
}

// Save writes the full table to the backing file and invalidates the
// read cache before returning. After Save returns, a subsequent Load
// reflects exactly the saved rows (modulo reassigned RowIDs). On
// failure the error propagates and the caller's in-memory table
// remains the source of truth.
func (s *Store) Save(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Invalidate first: even a failed write may have observers.
	s.cacheValid = false
	s.cache = nil

	err := WithLock(s.Path, func() error {
		return s.writeAllLocked(records)
	})
	if err != nil {
		return fmt.Errorf("writing record file: %w", err)
	}

	return nil
}

// Update runs one locked load-mutate-save cycle: the backing file is
// loaded fresh, mutate transforms the table, and the result is written
// back, all while holding the advisory file lock so a concurrent
// writer cannot interleave between the load and the save. An error
// from mutate aborts without writing and propagates unwrapped.
func (s *Store) Update(mutate func([]Record) ([]Record, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cacheValid = false
	s.cache = nil

	return WithLock(s.Path, func() error {
		records, loadErr := s.loadFromDisk()
		if loadErr != nil {
			return loadErr
		}

		updated, mutateErr := mutate(records)
		if mutateErr != nil {
			return mutateErr
		}

		writeErr := s.writeAllLocked(updated)
		if writeErr != nil {
			return fmt.Errorf("writing record file: %w", writeErr)
		}

		return nil
	})
}

// Append assigns the next ID and adds a single record to the backing
// file without rewriting the existing rows. The row is written in one
// flush so a partially written row is never produced. Returns the
// stored record with its assigned ID.
func (s *Store) Append(rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := WithLock(s.Path, func() error {
		records, loadErr := s.loadFromDisk()
		if loadErr != nil {
			return loadErr
		}

		rec.ID = nextID(records)
		rec.RowID = len(records)

		// A missing or seeded backing file has no header on disk yet,
		// and a legacy header has no ID column, so a raw appended row
		// would parse shifted. Both cases get a full rewrite with the
		// canonical header.
		data, readErr := os.ReadFile(s.Path)
		if readErr != nil {
			if !os.IsNotExist(readErr) {
				return readErr
			}

			return s.writeAllLocked(append(records, rec))
		}

		if !headerHasID(data) {
			return s.writeAllLocked(append(records, rec))
		}

		file, openErr := os.OpenFile(s.Path, os.O_WRONLY|os.O_APPEND, filePerms)
		if openErr != nil {
			return openErr
		}

		defer func() { _ = file.Close() }()

		var buf bytes.Buffer

		writer := csv.NewWriter(&buf)

		writeErr := writer.Write(rec.row())
		if writeErr != nil {
			return writeErr
		}

		writer.Flush()

		flushErr := writer.Error()
		if flushErr != nil {
			return flushErr
		}

		_, copyErr := io.Copy(file, &buf)
		if copyErr != nil {
			return copyErr
		}

		return file.Close()
	})

	s.cacheValid = false
	s.cache = nil

	if err != nil {
		return Record{}, fmt.Errorf("appending record: %w", err)
	}

	return rec, nil
}

// writeAllLocked writes the full table without taking the file lock.
// Caller must hold it.
func (s *Store) writeAllLocked(records []Record) error {
	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)

	writeErr := writer.Write(Header)
	if writeErr != nil {
		return writeErr
	}

	for _, r := range records {
		writeErr = writer.Write(r.row())
		if writeErr != nil {
			return writeErr
		}
	}

	writer.Flush()

	flushErr := writer.Error()
	if flushErr != nil {
		return flushErr
	}

	return atomic.WriteFile(s.Path, &buf)
}

// Invalidate drops the read cache so the next Load hits the disk.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cacheValid = false
	s.cache = nil
}

// ExportCSV writes the given records to w in the canonical column
// order without the identifier, matching the source tool's derived
// open/closed exports.
func ExportCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)

	err := writer.Write(ExportHeader)
	if err != nil {
		return fmt.Errorf("writing export: %w", err)
	}

	for _, rec := range records {
		err = writer.Write(rec.exportRow())
		if err != nil {
			return fmt.Errorf("writing export: %w", err)
		}
	}

	writer.Flush()

	flushErr := writer.Error()
	if flushErr != nil {
		return fmt.Errorf("writing export: %w", flushErr)
	}

	return nil
}

// nextID returns max(ID)+1, starting at 1 for an empty table.
func nextID(records []Record) int {
	next := 1

	for _, rec := range records {
		if rec.ID >= next {
			next = rec.ID + 1
		}
	}

	return next
}

func copyRecords(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)

	return out
}

// parseTable normalizes raw CSV bytes into the canonical table.
func parseTable(data []byte) ([]Record, error) {
	rows, err := readCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parsing record file: %w", err)
	}

	if len(rows) == 0 {
		return []Record{}, nil
	}

	header := rows[0]

	hasID := len(header) > 0 && strings.EqualFold(strings.TrimSpace(header[0]), "ID")
	if !hasID {
		// Legacy layout: the seven semantic columns without a key.
		if len(header) == 0 || !strings.EqualFold(strings.TrimSpace(header[0]), "Topic") {
			return nil, fmt.Errorf("%w: %q", ErrHeaderMismatch, strings.Join(header, ","))
		}
	}

	records := make([]Record, 0, len(rows)-1)

	for i, row := range rows[1:] {
		var rec Record

		fields := row
		if hasID {
			if len(fields) > 0 {
				rec.ID, _ = strconv.Atoi(strings.TrimSpace(fields[0]))
				fields = fields[1:]
			}
		}

		// Backfill missing trailing columns with "".
		padded := make([]string, len(ExportHeader))
		copy(padded, fields)

		rec.Topic = padded[0]
		rec.Owner = padded[1]
		rec.Status = padded[2]
		rec.TargetResolutionDate = padded[3]
		rec.ClosingComment = padded[4]
		rec.ClosedBy = padded[5]
		rec.ActualResolutionDate = padded[6]
		rec.RowID = i

		records = append(records, rec)
	}

	// Assign IDs to rows that lack one (legacy files, hand-edited
	// rows). Assignment is deterministic in file order and becomes
	// durable on the next save.
	for idx := range records {
		if records[idx].ID <= 0 {
			records[idx].ID = nextID(records)
		}
	}

	return records, nil
}

// headerHasID reports whether the file's header row starts with the
// ID column.
func headerHasID(data []byte) bool {
	rows, err := readCSV(data)
	if err != nil || len(rows) == 0 || len(rows[0]) == 0 {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(rows[0][0]), "ID")
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	return reader.ReadAll()
}

// indexColumns maps trimmed header names to their positions.
func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))

	for idx, name := range header {
		columns[strings.TrimSpace(name)] = idx
	}

	return columns
}

func columnValue(row []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(row) {
		return ""
	}

	return row[idx]
}
