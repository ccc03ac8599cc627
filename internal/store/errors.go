package store

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds recovered at the API boundary. Store functions never retry
// or suppress; each caller maps the kind to a status code.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrInsufficientStock = errors.New("insufficient copies")
	ErrMalformedRef      = errors.New("malformed reference")
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure, e.g. a duplicate ISBN.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
