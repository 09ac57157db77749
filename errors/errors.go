// Package errors provides error handling for metagnosis.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// hints, details, marks) and defines the pipeline error taxonomy:
//
//	ErrTransaction   the store failed to commit or roll back
//	ErrProcessing    a queue consumer failed while holding a dequeued batch
//	ErrTransientIO   a per-item network/download/render failure
//	ErrFatalConfig   unrecoverable startup misconfiguration
//
// Classification uses errors.Mark, so the original cause stays reachable:
//
//	err := errors.NewProcessingError(cause, "artifact")
//	errors.Is(err, errors.ErrProcessing) // true
//	errors.Is(err, cause)                // true
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
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Generic sentinels.
var (
	// ErrNotFound indicates the requested row or resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the caller passed malformed input
	ErrInvalidRequest = New("invalid request")
)

// Pipeline taxonomy sentinels. Match with errors.Is.
var (
	ErrTransaction = New("transaction error")
	ErrProcessing  = New("processing error")
	ErrTransientIO = New("transient io error")
	ErrFatalConfig = New("fatal config error")
)

// NewTransactionError classifies a store commit/rollback failure.
func NewTransactionError(err error, op string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, "transaction %s failed", op), ErrTransaction)
}

// NewProcessingError classifies a consumer failure on a dequeued batch.
func NewProcessingError(err error, queue string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, "processing %s batch", queue), ErrProcessing)
}

// NewTransientIOError classifies a failure on a single external item.
func NewTransientIOError(err error, target string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, "fetch %s", target), ErrTransientIO)
}

// NewFatalConfigError classifies a startup configuration failure.
func NewFatalConfigError(err error) error {
	if err == nil {
		return nil
	}
	return Mark(WithHint(Wrap(err, "invalid configuration"), "run `metagnosis am validate` to check the active configuration"), ErrFatalConfig)
}

// IsTransactionError reports whether err is or wraps a transaction failure.
func IsTransactionError(err error) bool {
	return err != nil && Is(err, ErrTransaction)
}

// IsProcessingError reports whether err is or wraps a consumer failure.
func IsProcessingError(err error) bool {
	return err != nil && Is(err, ErrProcessing)
}

// IsTransientIOError reports whether err is or wraps a per-item IO failure.
func IsTransientIOError(err error) bool {
	return err != nil && Is(err, ErrTransientIO)
}

// IsFatalConfigError reports whether err is or wraps a configuration failure.
func IsFatalConfigError(err error) bool {
	return err != nil && Is(err, ErrFatalConfig)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequestError checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequestError(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidRequestError creates an invalid-request error with a formatted message
func NewInvalidRequestError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidRequest, format, args...)
}
