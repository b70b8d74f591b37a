package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func Test_User_Add_Requires_Configured_Users_File(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.Env["OP_NEW_PASSWORD"] = "pw"

	AssertContains(t, r.MustFail("user", "add", "alice"), "no users_file configured")
}

func Test_User_Add_Bootstrap_Then_Admin_Only(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"

	// First user needs no login.
	out := r.MustRun("user", "add", "alice", "-r", "admin")
	AssertContains(t, out, "Added user alice")

	// Once the file exists, anonymous callers are rejected.
	stderr := r.MustFail("user", "add", "mallory", "-r", "admin")
	AssertContains(t, stderr, "only admins can add users")

	// An authenticated admin can add more users.
	r.Env["OP_PASSWORD"] = "pw"
	r.MustRun("-u", "alice", "user", "add", "bob", "-r", "editor")
}

func Test_User_Add_Bootstrap_With_Empty_Users_File(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"

	// A present but entryless users file still allows bootstrap.
	err := os.WriteFile(filepath.Join(r.Dir, "users.csv"), []byte("Username,Password,Role\n"), 0o600)
	if err != nil {
		t.Fatalf("writing users file: %v", err)
	}

	AssertContains(t, r.MustRun("user", "add", "alice", "-r", "admin"), "Added user alice")

	// The second add is gated again.
	AssertContains(t, r.MustFail("user", "add", "bob"), "only admins can add users")
}

func Test_User_Add_Requires_Password(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)

	AssertContains(t, r.MustFail("user", "add", "alice"), "password is required")
}

func Test_User_Add_Rejects_Invalid_Role(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"

	AssertContains(t, r.MustFail("user", "add", "alice", "-r", "root"), "invalid role")
}

func Test_Login_With_Wrong_Password_Fails(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"
	r.MustRun("user", "add", "alice", "-r", "editor")

	r.Env["OP_PASSWORD"] = "wrong"
	AssertContains(t, r.MustFail("-u", "alice", "submit", "-t", "x"), "invalid username or password")
}

func Test_Anonymous_Is_Read_Only_When_Users_File_Configured(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"
	r.MustRun("user", "add", "alice", "-r", "editor")

	// Listing works without login.
	if out := r.MustRun("open"); out != "no records" {
		t.Errorf("expected empty listing, got %q", out)
	}

	// Writing does not.
	AssertContains(t, r.MustFail("submit", "-t", "x"), "not allowed to modify records")
}

func Test_Authenticated_Editor_Can_Write(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"
	r.MustRun("user", "add", "alice", "-r", "editor")

	r.Env["OP_PASSWORD"] = "pw"
	out := r.MustRun("-u", "alice", "submit", "-t", "Server down")
	if out != "Submitted 1" {
		t.Errorf("expected %q, got %q", "Submitted 1", out)
	}

	// The closer defaults to the logged-in user.
	r.MustRun("-u", "alice", "close", "1", "-m", "done")
	AssertContains(t, r.MustRun("closed"), "alice")
}

func Test_User_Add_Usage_Errors(t *testing.T) {
	t.Parallel()

	r := NewCLI(t)
	r.WriteConfig(`{"users_file": "users.csv"}`)
	r.Env["OP_NEW_PASSWORD"] = "pw"

	for _, args := range [][]string{
		{"user"},
		{"user", "remove", "alice"},
		{"user", "add"},
	} {
		stderr := r.MustFail(args...)
		if !strings.Contains(stderr, "usage: op user add") {
			t.Errorf("args %v: expected usage error, got %q", args, stderr)
		}
	}
}
