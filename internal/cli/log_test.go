package cli

import (
	"testing"
)

func Test_Log_Empty_Trail(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)

	if out := r.MustRun("log"); out != "no audit entries" {
		t.Errorf("expected %q, got %q", "no audit entries", out)
	}
}

func Test_Log_Records_Edit_Changes(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.MustRun("submit", "-t", "Server down", "-o", "bob", "-d", "2024-01-10")
	r.MustRun("edit", "1", "-o", "dana", "-s", "In Progress")

	out := r.MustRun("log")
	AssertContains(t, out, `Owner: "bob" -> "dana"`)
	AssertContains(t, out, `Status: "New" -> "In Progress"`)
}

func Test_Log_Does_Not_Record_Unchanged_Fields(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.MustRun("submit", "-t", "Server down", "-o", "bob")

	// Re-assert the current owner; nothing changed.
	r.MustRun("edit", "1", "-o", "bob")

	if out := r.MustRun("log"); out != "no audit entries" {
		t.Errorf("no-op edit must not log, got:\n%s", out)
	}
}

func Test_Log_Attributes_The_Acting_User(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.Env["USER"] = "dana"
	r.MustRun("submit", "-t", "Server down", "-o", "bob")
	r.MustRun("edit", "1", "-o", "erin")

	AssertContains(t, r.MustRun("log"), "dana")
}

func Test_Log_Requires_Admin_Role(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"
	r.MustRun("user", "add", "ed", "-r", "editor")
	r.Env["OP_PASSWORD"] = "pw"

	stderr := r.MustFail("-u", "ed", "log")
	AssertContains(t, stderr, "not allowed to view the audit log")
}
