// Package repository defines error values that are reused across account
// store implementations. These sentinel values allow the service layer to
// distinguish absence (not an error for the caller) from a uniqueness
// violation and from a storage failure.
package repository

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when the requested account does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is matched by every DuplicateError.
var ErrConflict = errors.New("conflict")

// DuplicateError is returned when an insert violates a unique constraint.
// Field is "username" or "email".
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string { return "duplicate " + e.Field }

// Is makes errors.Is(err, ErrConflict) hold for duplicates.
func (e *DuplicateError) Is(target error) bool { return target == ErrConflict }

// normalizeEmail trims and lower-cases an address so uniqueness is
// case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
