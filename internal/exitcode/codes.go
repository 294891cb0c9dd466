// Package exitcode defines structured exit codes for authcap commands.
// The capture subprocess reports its outcome only through its exit code,
// so these codes are part of the contract between the supervisor and the
// capture process as well as a convenience for scripts driving the CLI.
//
// # Exit Code Ranges
//
//   - 0: Success
//   - 1-9: General errors (usage, internal)
//   - 10-19: Resource not found (credential file, browser driver)
//   - 30-39: Network/connectivity errors
//   - 50-59: Conflict/state errors
//
// # Usage
//
//	return exitcode.CredentialNotFound(path)     // Exit code 13
//	return exitcode.Newf(exitcode.ErrUsage, "invalid account index: %s", arg)
//
//	code := exitcode.Code(err)  // Returns ErrGeneral for non-coded errors
package exitcode

import (
	"errors"
	"fmt"
)

// Exit codes for authcap commands.
const (
	// Success indicates the command completed successfully.
	Success = 0

	// General errors (1-9)
	ErrGeneral  = 1 // General/unknown error
	ErrUsage    = 2 // Invalid arguments or usage
	ErrInternal = 3 // Internal error (bug)

	// Resource not found (10-19)
	ErrCredentialNotFound = 13 // Credential file not found
	ErrDriverNotFound     = 14 // Browser executable not found

	// Network/connectivity (30-39)
	ErrNetwork = 30 // Control server unreachable

	// Conflict/state errors (50-59)
	ErrConflict = 50 // Operation conflicts with current state (e.g. not running)
	ErrBusy     = 52 // A capture is already running
)

// Error wraps an error with a specific exit code.
type Error struct {
	Code    int
	Message string
	Cause   error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new coded error.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Newf creates a new coded error with printf-style formatting.
func Newf(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code extracts the exit code from an error.
// Returns ErrGeneral (1) if the error doesn't have a code.
func Code(err error) int {
	if err == nil {
		return Success
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ErrGeneral
}

// Is checks if an error has a specific exit code.
func Is(err error, code int) bool {
	return Code(err) == code
}

// CredentialNotFound returns an error for a missing credential file.
func CredentialNotFound(path string) *Error {
	return Newf(ErrCredentialNotFound, "credential file not found: %s", path)
}

// DriverNotFound returns an error for a missing browser executable.
func DriverNotFound(path string) *Error {
	return Newf(ErrDriverNotFound, "browser executable not found: %s", path)
}
