package tracker_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openpoints/internal/tracker"
)

func newAuditLog(t *testing.T) *tracker.AuditLog {
	t.Helper()

	return tracker.NewAuditLog(filepath.Join(t.TempDir(), "audit.csv"))
}

func Test_Audit_Read_Missing_File_Is_Empty(t *testing.T) {
	t.Parallel()

	log := newAuditLog(t)

	events, err := log.Read()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func Test_Audit_Append_Then_Read_Round_Trips(t *testing.T) {
	t.Parallel()

	log := newAuditLog(t)

	when := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

	err := log.Append(tracker.AuditEvent{
		Time:   when,
		Editor: "alice",
		Field:  "Owner",
		Before: "bob",
		After:  "carol",
	})
	require.NoError(t, err)

	err = log.Append(tracker.AuditEvent{
		Time:   when.Add(time.Minute),
		Editor: "alice",
		Field:  "Status",
		Before: "New",
		After:  "In Progress",
	})
	require.NoError(t, err)

	events, err := log.Read()
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, when, events[0].Time)
	assert.Equal(t, "alice", events[0].Editor)
	assert.Equal(t, "Owner", events[0].Field)
	assert.Equal(t, "bob", events[0].Before)
	assert.Equal(t, "carol", events[0].After)

	assert.Equal(t, "Status", events[1].Field)
}

func Test_Audit_Header_Written_Exactly_Once(t *testing.T) {
	t.Parallel()

	log := newAuditLog(t)

	for range 3 {
		err := log.Append(tracker.AuditEvent{Time: time.Now(), Editor: "a", Field: "Topic"})
		require.NoError(t, err)
	}

	data, err := os.ReadFile(log.Path)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(data), "Timestamp,Editor,Field,Before,After"))
	assert.Equal(t, 4, len(strings.Split(strings.TrimRight(string(data), "\n"), "\n")))
}

func Test_Audit_Values_With_Commas_Survive(t *testing.T) {
	t.Parallel()

	log := newAuditLog(t)

	err := log.Append(tracker.AuditEvent{
		Time:   time.Now(),
		Editor: "alice",
		Field:  "Topic",
		Before: "one, two",
		After:  "line\nbreak",
	})
	require.NoError(t, err)

	events, err := log.Read()
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "one, two", events[0].Before)
	assert.Equal(t, "line\nbreak", events[0].After)
}
