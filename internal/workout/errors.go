package workout

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the resource does not exist.
var ErrNotFound = errors.New("workout resource not found")

// ConflictError reports a stale ExpectedVersion. The caller must re-read
// the resource and decide whether to retry; the applier never retries.
type ConflictError struct {
	CurrentVersion int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version is %d", e.CurrentVersion)
}

// ValidationError reports a malformed command payload. It is never
// retried; the caller must correct the command.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid command: " + e.Reason
	}
	return fmt.Sprintf("invalid command: %s: %s", e.Field, e.Reason)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
