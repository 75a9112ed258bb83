package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error. Every error that crosses a component
// boundary carries exactly one Kind; the HTTP layer maps Kinds to status
// codes without ever inspecting driver-specific error types.
type Kind string

const (
	KindInvalid            Kind = "Invalid"
	KindNotFound           Kind = "NotFound"
	KindConflict           Kind = "Conflict"
	KindEngineNotAvailable Kind = "EngineNotAvailable"
	KindNotSupported       Kind = "NotSupported"
	KindDepthLimitExceeded Kind = "DepthLimitExceeded"
	KindStoreUnavailable   Kind = "StoreUnavailable"
	KindInternal           Kind = "Internal"
)

// AppError is the single error type surfaced by adapters and services.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// HTTPStatus returns the status code for the error's Kind.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalid, KindEngineNotAvailable, KindNotSupported, KindDepthLimitExceeded:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Constructor functions for the error taxonomy

// NewInvalid creates a malformed-input error
func NewInvalid(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound creates an absent-resource error
func NewNotFound(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflict creates a duplicate-resource error
func NewConflict(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NewEngineNotAvailable signals that the requested engine is not configured
// or its driver did not initialise.
func NewEngineNotAvailable(engine string) *AppError {
	return &AppError{Kind: KindEngineNotAvailable, Message: fmt.Sprintf("engine %q is not available", engine)}
}

// NewNotSupported signals that the operation is impossible on the selected engine.
func NewNotSupported(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindNotSupported, Message: fmt.Sprintf(format, args...)}
}

// NewDepthLimitExceeded signals an impact depth outside the accepted range.
func NewDepthLimitExceeded(depth, min, max int) *AppError {
	return &AppError{Kind: KindDepthLimitExceeded, Message: fmt.Sprintf("depth %d outside allowed range [%d, %d]", depth, min, max)}
}

// NewStoreUnavailable creates a transient back-end error; safe to retry.
func NewStoreUnavailable(engine string, err error) *AppError {
	return &AppError{Kind: KindStoreUnavailable, Message: fmt.Sprintf("store %q is unavailable", engine), Cause: err}
}

// NewInternal creates an unclassified server-side error
func NewInternal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Cause: err}
}

// Helper functions

// GetAppError extracts an AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// KindOf returns the Kind of err, or KindInternal when err carries no AppError.
func KindOf(err error) Kind {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind checks if an error carries a specific Kind
func IsKind(err error, kind Kind) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Kind == kind
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

// IsInvalid checks if an error is a validation error
func IsInvalid(err error) bool {
	return IsKind(err, KindInvalid)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsKind(err, KindConflict)
}

// IsStoreUnavailable checks if an error is a transient store error
func IsStoreUnavailable(err error) bool {
	return IsKind(err, KindStoreUnavailable)
}

// HTTPStatusOf maps any error to a status code; non-AppErrors become 500.
func HTTPStatusOf(err error) int {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Wrap adds context to an error while preserving its Kind.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return &AppError{Kind: appErr.Kind, Message: fmt.Sprintf("%s: %s", message, appErr.Message), Cause: err}
	}
	return NewInternal(message, err)
}
