package tracker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"slices"

	"github.com/natefinch/atomic"
	"golang.org/x/crypto/bcrypt"
)

// usersHeader is the column layout of the user table.
var usersHeader = []string{"Username", "Password", "Role"}

var validRoles = []string{RoleAdmin, RoleEditor, RoleUser}

// IsValidRole checks if the role is one of admin, editor, user.
func IsValidRole(role string) bool {
	return slices.Contains(validRoles, role)
}

// Users is the optional authentication collaborator: a CSV table of
// username, bcrypt password hash, and role. When no users file is
// configured the tool runs without login as an implicit admin.
type Users struct {
	Path string
}

// NewUsers creates a user table backed by the given file.
func NewUsers(path string) *Users {
	return &Users{Path: path}
}

type userRow struct {
	name string
	hash string
	role string
}

func (u *Users) load() ([]userRow, error) {
	data, readErr := os.ReadFile(u.Path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return []userRow{}, nil
		}

		return nil, fmt.Errorf("reading users file: %w", readErr)
	}

	rows, parseErr := readCSV(data)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing users file: %w", parseErr)
	}

	users := make([]userRow, 0, len(rows))

	for i, row := range rows {
		if i == 0 {
			continue // header
		}

		padded := make([]string, len(usersHeader))
		copy(padded, row)

		users = append(users, userRow{name: padded[0], hash: padded[1], role: padded[2]})
	}

	return users, nil
}

func (u *Users) save(users []userRow) error {
	var buf bytes.Buffer

	writer := csv.NewWriter(&buf)

	writeErr := writer.Write(usersHeader)
	if writeErr != nil {
		return fmt.Errorf("writing users file: %w", writeErr)
	}

	for _, row := range users {
		writeErr = writer.Write([]string{row.name, row.hash, row.role})
		if writeErr != nil {
			return fmt.Errorf("writing users file: %w", writeErr)
		}
	}

	writer.Flush()

	flushErr := writer.Error()
	if flushErr != nil {
		return fmt.Errorf("writing users file: %w", flushErr)
	}

	atomicErr := atomic.WriteFile(u.Path, &buf)
	if atomicErr != nil {
		return fmt.Errorf("writing users file: %w", atomicErr)
	}

	return nil
}

// Empty reports whether the user table has no entries. A missing
// file, a zero-byte file, and a header-only file are all empty.
func (u *Users) Empty() (bool, error) {
	users, err := u.load()
	if err != nil {
		return false, err
	}

	return len(users) == 0, nil
}

// Add hashes the password and appends a user. The username must not
// already exist and the role must be valid.
func (u *Users) Add(name, password, role string) error {
	if !IsValidRole(role) {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	users, loadErr := u.load()
	if loadErr != nil {
		return loadErr
	}

	for _, row := range users {
		if row.name == name {
			return fmt.Errorf("%w: %s", ErrUserExists, name)
		}
	}

	hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if hashErr != nil {
		return fmt.Errorf("hashing password: %w", hashErr)
	}

	users = append(users, userRow{name: name, hash: string(hash), role: role})

	return u.save(users)
}

// Authenticate verifies the password against the stored hash and
// returns the user. The error is the same for an unknown user and a
// wrong password so the two cases cannot be distinguished.
func (u *Users) Authenticate(name, password string) (User, error) {
	users, loadErr := u.load()
	if loadErr != nil {
		return User{}, loadErr
	}

	for _, row := range users {
		if row.name != name {
			continue
		}

		compareErr := bcrypt.CompareHashAndPassword([]byte(row.hash), []byte(password))
		if compareErr != nil {
			return User{}, ErrBadCredentials
		}

		return User{Name: row.name, Role: row.role}, nil
	}

	return User{}, ErrBadCredentials
}
