// Package apperr defines the closed set of failure kinds shared by the
// authentication core and the HTTP boundary. Core operations only ever fail
// with an *Error; the boundary decides which transport status each Kind maps
// to. Callers should use KindOf or Is rather than comparing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind tags an Error with the class of failure it represents.
type Kind string

const (
	Validation     Kind = "validation"     // malformed or missing input
	Authentication Kind = "authentication" // identity could not be established or is no longer valid
	Authorization  Kind = "authorization"  // identity established but insufficiently privileged
	Conflict       Kind = "conflict"       // uniqueness violation
	NotFound       Kind = "not_found"      // referenced entity absent
	Configuration  Kind = "configuration"  // missing server secret/config, fatal at startup
	Internal       Kind = "internal"       // unexpected failure in a dependency
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{Validation, Authentication, Authorization, Conflict, NotFound, Configuration, Internal}

// Error is the tagged failure value. Message is safe to show to a caller for
// every Kind except Internal and Configuration. Field names the offending
// input for Validation and Conflict errors when one is known.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap records err as the cause of a new Error.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// WithField returns a copy of e naming the offending field.
func (e *Error) WithField(field string) *Error {
	cp := *e
	cp.Field = field
	return &cp
}

// ConflictOn reports that field already holds the submitted value.
func ConflictOn(field string) *Error {
	return &Error{Kind: Conflict, Message: field + " already exists", Field: field}
}

// KindOf returns the Kind carried by err. Untyped errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// FieldOf returns the field named by err, or "".
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// MessageOf returns the caller-facing message for err. Internal and
// configuration failures never expose their cause.
func MessageOf(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal || e.Kind == Configuration {
		return "internal server error"
	}
	return e.Message
}
