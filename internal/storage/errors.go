package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced event, player, or edge does
	// not exist. Callers surface this as a clean not-found result.
	ErrNotFound = errors.New("not found")

	// ErrExists indicates a create collided with an existing record.
	ErrExists = errors.New("already exists")
)

// ValidationError reports malformed input: negative stakes, duplicate
// player names, empty event names. It is returned to the caller immediately
// and the operation is never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
