// Package errs provides the unified error type used across all of TabRi.
//
// Every subsystem (schema, validation, repository, tabular drivers, …) wraps
// its native errors into *errs.Error before returning them to callers.
// Callers use the Is* predicates to handle errors without importing
// driver-specific packages.
//
// Usage:
//
//	// In a driver — wrap native errors:
//	return errs.Wrap(errs.ErrKindStorage, "row rewrite failed", csvErr)
//
//	// In a handler — check error kind:
//	if errs.IsValidation(err) {
//	    for _, v := range errs.ViolationsOf(err) { ... }
//	}
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All layers (validator, repository, store drivers, …) map their failures
// to one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no row, no object, no bucket
	ErrKindSchemaNotFound           // table name absent from the registry
	ErrKindValidation               // one or more field constraint violations
	ErrKindForeignKey               // referenced parent value does not exist
	ErrKindRestrictedDelete         // RESTRICT children block a parent delete
	ErrKindConflict                 // unique-value collision
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindStorage                  // backing store read/write failure
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindSchemaNotFound:
		return "schema_not_found"
	case ErrKindValidation:
		return "validation_failed"
	case ErrKindForeignKey:
		return "foreign_key_violation"
	case ErrKindRestrictedDelete:
		return "restricted_delete"
	case ErrKindConflict:
		return "conflict"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindStorage:
		return "storage_failed"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all TabRi subsystems.
// Layers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original lower-level error, preserved for logging

	// Violations holds the complete list of constraint messages for
	// ErrKindValidation errors — never just the first failure.
	Violations []string
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Kind, e.Message)
	if len(e.Violations) > 0 {
		sb.WriteString(":\n")
		sb.WriteString(strings.Join(e.Violations, "\n"))
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an *Error with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Validation creates an ErrKindValidation error carrying the full list of
// violated-constraint messages for a table.
func Validation(table string, violations []string) *Error {
	return &Error{
		Kind:       ErrKindValidation,
		Message:    fmt.Sprintf("validation failed for table %q (%d violations)", table, len(violations)),
		Violations: violations,
	}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (missing row, missing object, …).
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsSchemaNotFound reports whether err was caused by looking up a table
// name that is not registered in the schema registry.
func IsSchemaNotFound(err error) bool {
	return kindOf(err) == ErrKindSchemaNotFound
}

// IsValidation reports whether err carries field constraint violations.
func IsValidation(err error) bool {
	return kindOf(err) == ErrKindValidation
}

// IsForeignKey reports whether err was caused by writing a child record
// whose foreign-key value has no matching parent.
func IsForeignKey(err error) bool {
	return kindOf(err) == ErrKindForeignKey
}

// IsRestrictedDelete reports whether err was caused by deleting a parent
// row that RESTRICT-configured children still reference.
func IsRestrictedDelete(err error) bool {
	return kindOf(err) == ErrKindRestrictedDelete
}

// IsConflict reports whether err is a unique-value collision.
func IsConflict(err error) bool {
	return kindOf(err) == ErrKindConflict
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsStorage reports whether err is a backing store read/write failure.
func IsStorage(err error) bool {
	return kindOf(err) == ErrKindStorage
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// ViolationsOf returns the full violation list of an ErrKindValidation
// error, or nil for any other error.
func ViolationsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrKindValidation {
		return e.Violations
	}
	return nil
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
