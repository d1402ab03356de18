package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"onnxd/internal/dispatcher"
	"onnxd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps dispatcher errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case errors.As(err, &he):
		return he.StatusCode()
	case errors.Is(err, dispatcher.ErrNotInitialized),
		errors.Is(err, dispatcher.ErrTerminated),
		errors.Is(err, dispatcher.ErrChannelClosed):
		return http.StatusServiceUnavailable
	case dispatcher.IsModelLoadError(err), dispatcher.IsBackendError(err):
		return http.StatusBadGateway
	case errors.Is(err, dispatcher.ErrModelLoadTimeout),
		errors.Is(err, dispatcher.ErrRunTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Server shutting down.
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
