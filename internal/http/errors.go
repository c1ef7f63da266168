package httpx

import (
	"context"
	"errors"
	"net/http"

	apperrors "github.com/yuedu-lab/yuedu/internal/errors"
	"github.com/yuedu-lab/yuedu/internal/service"
)

// errorStatus maps a service error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, string(apperrors.ErrCodeTimeout)
	case errors.Is(err, context.Canceled):
		return 499, string(apperrors.ErrCodeCanceled)
	}

	code := apperrors.GetCode(err)
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest, string(code)
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, string(code)
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable, string(code)
	case apperrors.ErrCodeUpstream:
		return http.StatusBadGateway, string(code)
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout, string(code)
	default:
		return http.StatusInternalServerError, string(apperrors.ErrCodeInternal)
	}
}

// writeServiceError writes err with the status errorStatus picks. Internal
// errors are logged and their detail hidden from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		err = errors.New(http.StatusText(http.StatusInternalServerError))
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: err})
}
