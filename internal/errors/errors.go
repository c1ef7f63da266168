// Package errors defines the structured application error shared by services
// and the HTTP layer. The HTTP layer maps each ErrorCode to one status.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeUnavailable covers an unreachable dependency or a full queue.
	ErrCodeUnavailable ErrorCode = "unavailable"
	// ErrCodeUpstream covers a dependency that answered with unusable content.
	ErrCodeUpstream ErrorCode = "upstream"
	ErrCodeInternal ErrorCode = "internal"
	ErrCodeTimeout  ErrorCode = "timeout"
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError carries a code, a client-safe message and an optional cause.
// Field names the offending input for validation errors.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *AppError) Unwrap() error { return e.Cause }

func newf(code ErrorCode, format string, args ...any) *AppError {
	if len(args) == 0 {
		return &AppError{Code: code, Message: format}
	}
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not_found error.
func NotFound(message string) *AppError { return newf(ErrCodeNotFound, "%s", message) }

// NotFoundf creates a not_found error with a formatted message.
func NotFoundf(format string, args ...any) *AppError { return newf(ErrCodeNotFound, format, args...) }

// Validation creates a validation error.
func Validation(message string) *AppError { return newf(ErrCodeValidation, "%s", message) }

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *AppError { return newf(ErrCodeValidation, format, args...) }

// ValidationField creates a validation error naming the offending field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Unavailable creates an unavailable error.
func Unavailable(message string) *AppError { return newf(ErrCodeUnavailable, "%s", message) }

// Upstream creates an upstream error.
func Upstream(message string) *AppError { return newf(ErrCodeUpstream, "%s", message) }

// Wrap attaches code and message to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// IsNotFound reports a not_found error anywhere in the chain.
func IsNotFound(err error) bool { return HasCode(err, ErrCodeNotFound) }

// IsValidation reports a validation error anywhere in the chain.
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidation) }

// IsUnavailable reports an unavailable error anywhere in the chain.
func IsUnavailable(err error) bool { return HasCode(err, ErrCodeUnavailable) }

// IsUpstream reports an upstream error anywhere in the chain.
func IsUpstream(err error) bool { return HasCode(err, ErrCodeUpstream) }

// GetCode returns the code of the outermost AppError, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field of the outermost AppError, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
