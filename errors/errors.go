// Package errors provides error handling for termforge.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Error marks, so a wrapped store failure can still be matched as a commit failure
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Raise a composer contract violation
//	return errors.Wrapf(errors.ErrEmptySchema, "pattern %s", id)
//
//	// Check errors
//	if errors.Is(err, errors.ErrCommit) {
//	    // session was aborted, nothing persisted
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	CombineErrors      = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapOnce     = crdb.UnwrapOnce
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the reportable stack trace attached to err, if any.
var GetStack = crdb.GetReportableStackTrace

// Assertions and panics
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Composition contract violations. These are raised at the call that introduces
// them and are never coerced.
var (
	// ErrDuplicateEntity indicates a StableID already denotes an entity of another kind
	ErrDuplicateEntity = New("duplicate entity")

	// ErrEmptySchema indicates a pattern was declared without field definitions
	ErrEmptySchema = New("empty pattern schema")

	// ErrFieldArityMismatch indicates a semantic's value count differs from its pattern's field count
	ErrFieldArityMismatch = New("field arity mismatch")

	// ErrFieldTypeMismatch indicates a semantic value does not match its slot's datatype
	ErrFieldTypeMismatch = New("field type mismatch")

	// ErrUnresolvedReference indicates a facet references an entity that was never assigned
	ErrUnresolvedReference = New("unresolved reference")

	// ErrAliasConflict indicates an alias is already bound to a different handle
	ErrAliasConflict = New("alias conflict")
)

// Session lifecycle errors.
var (
	// ErrAlreadyOpen indicates a session (or a composer slot) is already open
	ErrAlreadyOpen = New("session already open")

	// ErrSessionClosed indicates composition was attempted outside the Open state
	ErrSessionClosed = New("session is not open")

	// ErrCommit marks a failed commit; the wrapped cause is the store failure
	ErrCommit = New("commit failed")
)

// Export errors. Neither leaves a partial artifact at the destination.
var (
	// ErrExportIO indicates the destination could not be created or written
	ErrExportIO = New("export i/o failure")

	// ErrExportInterrupted indicates the export was cancelled mid-flight
	ErrExportInterrupted = New("export interrupted")

	// ErrIncompatibleFormat indicates an artifact was written by an unsupported format version
	ErrIncompatibleFormat = New("incompatible artifact format")

	// ErrCorruptArtifact indicates an artifact failed structural or digest checks
	ErrCorruptArtifact = New("corrupt artifact")
)

// Common sentinel errors.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	ErrInvalidRequest = New("invalid request")
)

// MarkCommit wraps a store failure as a commit error. The result matches both
// ErrCommit and the original cause with Is.
func MarkCommit(cause error, format string, args ...interface{}) error {
	return Mark(Wrapf(cause, format, args...), ErrCommit)
}

// MarkExportIO wraps a filesystem failure as an export i/o error.
func MarkExportIO(cause error, format string, args ...interface{}) error {
	return Mark(Wrapf(cause, format, args...), ErrExportIO)
}

// IsContractViolation reports whether err is one of the build-time composition
// contract violations.
func IsContractViolation(err error) bool {
	return err != nil && IsAny(err,
		ErrDuplicateEntity,
		ErrEmptySchema,
		ErrFieldArityMismatch,
		ErrFieldTypeMismatch,
		ErrUnresolvedReference,
		ErrAliasConflict,
	)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
