package service

import (
	"errors"
	"strings"

	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
)

// Sentinel causes of a failed model-backed operation. They carry application
// error codes so callers can map them without knowing this package.
var (
	// ErrBackendUnavailable means the model backend could not be reached or
	// returned nothing.
	ErrBackendUnavailable = apperrors.Unavailable("model backend unavailable")
	// ErrParseFailed means the model answered with text that is not JSON even
	// after repair.
	ErrParseFailed = apperrors.Upstream("failed to parse model response")
	// ErrModelRejected means the model answered with JSON that reports a
	// failure or lacks the expected fields.
	ErrModelRejected = apperrors.Upstream("model did not return a usable result")
)

// ModelError describes why a model-backed operation failed. Raw carries the
// normalized model output when it was received but could not be used.
type ModelError struct {
	Cause   error
	Message string
	Raw     string
}

func (e *ModelError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Cause.Error()
}

func (e *ModelError) Unwrap() error { return e.Cause }

func errUnavailable() error {
	return &ModelError{Cause: ErrBackendUnavailable, Message: ErrBackendUnavailable.Error()}
}

func errParse(raw string) error {
	return &ModelError{Cause: ErrParseFailed, Message: ErrParseFailed.Error(), Raw: raw}
}

func errRejected(msg, raw string) error {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = ErrModelRejected.Error()
	}
	return &ModelError{Cause: ErrModelRejected, Message: msg, Raw: raw}
}

// RawResponse returns the model output attached to err, if any.
func RawResponse(err error) string {
	var me *ModelError
	if errors.As(err, &me) {
		return me.Raw
	}
	return ""
}
