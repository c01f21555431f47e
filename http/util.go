package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/remote"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// respondError writes an error response with the given status code and message.
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := &ErrorResponse{
		Errors: []string{message},
	}

	json.NewEncoder(w).Encode(resp)
}

// respondOk writes a successful JSON response with status 200.
func respondOk(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// errorToStatusCode maps errors to appropriate HTTP status codes.
// Classification is on sentinel identity, never on message text.
func errorToStatusCode(err error) int {
	switch {
	case errors.Is(err, credential.ErrNoTokenAvailable),
		errors.Is(err, credential.ErrAuthorizationExpired),
		errors.Is(err, credential.ErrRefreshFailed),
		errors.Is(err, remote.ErrAuthorizationRejected):
		return http.StatusUnauthorized
	case errors.Is(err, remote.ErrAPI):
		return http.StatusBadGateway
	case errors.Is(err, remote.ErrNetwork),
		errors.Is(err, credential.ErrNetwork):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
