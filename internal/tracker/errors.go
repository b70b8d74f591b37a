package tracker

import "errors"

// StatusClosed is the distinguished status value that moves a record
// into the closed partition. Matching is case-insensitive; every other
// status string means the record is open.
const StatusClosed = "Closed"

// Roles for the optional user table.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleUser   = "user"
)

// Error variables for tracker operations.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrCSVPathEmpty       = errors.New("csv_file cannot be empty")
	ErrRecordNotFound     = errors.New("record not found, refresh and retry")
	ErrRecordIDRequired   = errors.New("record ID is required")
	ErrTopicRequired      = errors.New("topic cannot be empty")
	ErrNoPendingClose     = errors.New("no close is pending")
	ErrNoPendingEdit      = errors.New("no edit is pending")
	ErrWriteNotAllowed    = errors.New("role is not allowed to modify records")
	ErrLogNotAllowed      = errors.New("role is not allowed to view the audit log")
	ErrUserNotFound       = errors.New("unknown user")
	ErrBadCredentials     = errors.New("invalid username or password")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidRole        = errors.New("invalid role")
	ErrHeaderMismatch     = errors.New("backing file has an unrecognized header")
)
