package tracker_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"openpoints/internal/tracker"
)

func newStore(t *testing.T) *tracker.Store {
	t.Helper()

	return tracker.NewStore(filepath.Join(t.TempDir(), "open_points.csv"))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func Test_Load_Missing_File_Returns_Empty_Table(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(records) != 0 {
		t.Errorf("len(records)=%d, want 0", len(records))
	}
}

func Test_Load_Is_Idempotent(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeFile(t, store.Path, strings.Join([]string{
		"ID,Topic,Owner,Status,Target Resolution Date,Closing Comment,Closed By,Actual Resolution Date",
		"1,Server down,bob,New,2024-01-10,,,",
		"2,Renew certs,alice,closed,2024-02-01,done,carol,2024-01-20",
		"",
	}, "\n"))

	first, err := store.Load()
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	second, err := store.Load()
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated loads differ (-first +second):\n%s", diff)
	}

	for i, rec := range first {
		if rec.RowID != i {
			t.Errorf("records[%d].RowID=%d, want %d", i, rec.RowID, i)
		}
	}
}

func Test_Save_Load_Round_Trip(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	table := []tracker.Record{
		{ID: 1, RowID: 0, Topic: "Server down", Owner: "bob", Status: "New", TargetResolutionDate: "2024-01-10"},
		{ID: 2, RowID: 1, Topic: "Renew certs", Owner: "alice", Status: "Closed", TargetResolutionDate: "2024-02-01",
			ClosingComment: "done", ClosedBy: "carol", ActualResolutionDate: "2024-01-20"},
	}

	saveErr := store.Save(table)
	if saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	loaded, loadErr := store.Load()
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}

	if diff := cmp.Diff(table, loaded); diff != "" {
		t.Errorf("round trip differs (-saved +loaded):\n%s", diff)
	}
}

func Test_Save_Invalidates_Cache(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	saveErr := store.Save([]tracker.Record{{ID: 1, Topic: "first", Status: "New"}})
	if saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	// Warm the cache.
	_, loadErr := store.Load()
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}

	saveErr = store.Save([]tracker.Record{
		{ID: 1, Topic: "first", Status: "New"},
		{ID: 2, Topic: "second", Status: "New"},
	})
	if saveErr != nil {
		t.Fatalf("second Save() error = %v", saveErr)
	}

	records, loadErr := store.Load()
	if loadErr != nil {
		t.Fatalf("Load() after save error = %v", loadErr)
	}

	if len(records) != 2 {
		t.Fatalf("len(records)=%d after save, want 2 (stale cache?)", len(records))
	}
}

func Test_Append_Assigns_Next_ID(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	first, err := store.Append(tracker.Record{Topic: "first", Status: "New"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if first.ID != 1 {
		t.Errorf("first.ID=%d, want 1", first.ID)
	}

	second, err := store.Append(tracker.Record{Topic: "second", Status: "New"})
	if err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	if second.ID != 2 {
		t.Errorf("second.ID=%d, want 2", second.ID)
	}

	records, loadErr := store.Load()
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}

	if len(records) != 2 {
		t.Fatalf("len(records)=%d, want 2", len(records))
	}

	if records[0].Topic != "first" || records[1].Topic != "second" {
		t.Errorf("append order not preserved: %+v", records)
	}
}

func Test_Append_Keeps_Header_Intact(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	_, err := store.Append(tracker.Record{Topic: "only", Status: "New"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	_, err = store.Append(tracker.Record{Topic: "again", Status: "New"})
	if err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	data, readErr := os.ReadFile(store.Path)
	if readErr != nil {
		t.Fatalf("reading backing file: %v", readErr)
	}

	if count := strings.Count(string(data), "Target Resolution Date"); count != 1 {
		t.Errorf("header appears %d times, want 1\nfile:\n%s", count, data)
	}
}

func Test_Load_Backfills_Missing_Columns(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeFile(t, store.Path, strings.Join([]string{
		"ID,Topic,Owner,Status,Target Resolution Date,Closing Comment,Closed By,Actual Resolution Date",
		"1,Short row,bob",
		"",
	}, "\n"))

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("len(records)=%d, want 1", len(records))
	}

	rec := records[0]
	if rec.Status != "" || rec.ClosingComment != "" || rec.ClosedBy != "" || rec.ActualResolutionDate != "" {
		t.Errorf("missing columns not backfilled empty: %+v", rec)
	}
}

func Test_Load_Legacy_File_Without_ID_Column(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeFile(t, store.Path, strings.Join([]string{
		"Topic,Owner,Status,Target Resolution Date,Closing Comment,Closed By,Actual Resolution Date",
		"Server down,bob,New,2024-01-10,,,",
		"Renew certs,alice,New,2024-02-01,,,",
		"",
	}, "\n"))

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("len(records)=%d, want 2", len(records))
	}

	if records[0].ID != 1 || records[1].ID != 2 {
		t.Errorf("legacy IDs = %d, %d, want 1, 2", records[0].ID, records[1].ID)
	}
}

func Test_Append_To_Legacy_File_Rewrites_With_ID_Column(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeFile(t, store.Path, strings.Join([]string{
		"Topic,Owner,Status,Target Resolution Date,Closing Comment,Closed By,Actual Resolution Date",
		"Server down,bob,New,2024-01-10,,,",
		"",
	}, "\n"))

	appended, err := store.Append(tracker.Record{Topic: "Renew certs", Owner: "alice", Status: "New"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if appended.ID != 2 {
		t.Errorf("appended.ID=%d, want 2", appended.ID)
	}

	records, loadErr := store.Load()
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}

	if len(records) != 2 {
		t.Fatalf("len(records)=%d, want 2", len(records))
	}

	// Raw appending an ID-bearing row to the seven-column layout would
	// shift every field one column to the right on the next load.
	if records[1].Topic != "Renew certs" || records[1].Owner != "alice" {
		t.Errorf("appended row misaligned: %+v", records[1])
	}

	if records[0].ID != 1 || records[1].ID != 2 {
		t.Errorf("IDs=%d,%d, want 1,2", records[0].ID, records[1].ID)
	}

	data, readErr := os.ReadFile(store.Path)
	if readErr != nil {
		t.Fatalf("reading backing file: %v", readErr)
	}

	if !strings.HasPrefix(string(data), "ID,Topic,") {
		t.Errorf("file not rewritten with the ID-bearing header:\n%s", data)
	}
}

func Test_Update_Persists_The_Mutation(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	saveErr := store.Save([]tracker.Record{{ID: 1, Topic: "Server down", Status: "New"}})
	if saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	err := store.Update(func(records []tracker.Record) ([]tracker.Record, error) {
		records[0].Status = "Closed"

		return records, nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	records, loadErr := store.Load()
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}

	if records[0].Status != "Closed" {
		t.Errorf("Status=%q after update, want %q", records[0].Status, "Closed")
	}
}

func Test_Update_Error_Aborts_Without_Writing(t *testing.T) {
	t.Parallel()

	store := newStore(t)

	saveErr := store.Save([]tracker.Record{{ID: 1, Topic: "Server down", Status: "New"}})
	if saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	sentinel := errors.New("record rejected")

	err := store.Update(func(records []tracker.Record) ([]tracker.Record, error) {
		records[0].Status = "Closed"

		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Update() err=%v, want the mutate error", err)
	}

	records, loadErr := store.Load()
	if loadErr != nil {
		t.Fatalf("Load() error = %v", loadErr)
	}

	if records[0].Status != "New" {
		t.Errorf("Status=%q after aborted update, want %q", records[0].Status, "New")
	}
}

func Test_Load_Rejects_Unknown_Header(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	writeFile(t, store.Path, "Name,Value\na,b\n")

	_, err := store.Load()
	if err == nil {
		t.Fatal("Load() succeeded on an unrecognized header")
	}

	if !strings.Contains(err.Error(), "unrecognized header") {
		t.Errorf("err=%v, want header mismatch", err)
	}
}

func Test_Load_Seeds_From_Import_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := tracker.NewStore(filepath.Join(dir, "open_points.csv"))
	store.SeedPath = filepath.Join(dir, "seed.csv")

	writeFile(t, store.SeedPath, strings.Join([]string{
		"Topic,Owner,Status,Resolution Date",
		"Migrate DB,dana,In Progress,2024-03-01",
		"",
	}, "\n"))

	records, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("len(records)=%d, want 1", len(records))
	}

	rec := records[0]

	if rec.TargetResolutionDate != "2024-03-01" {
		t.Errorf("TargetResolutionDate=%q, want the seed's Resolution Date", rec.TargetResolutionDate)
	}

	if rec.ClosingComment != "" || rec.ClosedBy != "" || rec.ActualResolutionDate != "" {
		t.Errorf("closing columns not empty after seed: %+v", rec)
	}

	if rec.ID != 1 {
		t.Errorf("ID=%d, want 1", rec.ID)
	}

	// Seeding is in-memory only until the first save.
	_, statErr := os.Stat(store.Path)
	if !os.IsNotExist(statErr) {
		t.Errorf("backing file exists before first save (stat err=%v)", statErr)
	}
}

func Test_Export_Omits_ID_Column(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	err := tracker.ExportCSV(&buf, []tracker.Record{
		{ID: 7, Topic: "Server down", Owner: "bob", Status: "New", TargetResolutionDate: "2024-01-10"},
	})
	if err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	out := buf.String()

	if strings.Contains(out, "ID") {
		t.Errorf("export contains the ID column:\n%s", out)
	}

	if !strings.HasPrefix(out, "Topic,Owner,Status,Target Resolution Date,Closing Comment,Closed By,Actual Resolution Date\n") {
		t.Errorf("export header wrong:\n%s", out)
	}

	if !strings.Contains(out, "Server down,bob,New,2024-01-10,,,") {
		t.Errorf("export row wrong:\n%s", out)
	}
}
