// Package remote fetches resource items from the upstream service.
// It owns the wire protocol, retry policy, and the classification of
// fetch failures.
package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork is returned when the upstream could not be reached at
	// the transport level.
	ErrNetwork = errors.New("network error")

	// ErrAPI is returned when the upstream answered with a non-success
	// status.
	ErrAPI = errors.New("api error")

	// ErrAuthorizationRejected is returned when the upstream refused
	// the access token. Callers holding a refreshable credential can
	// refresh and retry once.
	ErrAuthorizationRejected = errors.New("authorization rejected by remote")

	// ErrUnknown is returned for failures that fit no other category.
	ErrUnknown = errors.New("unknown fetch error")
)

// StatusError carries the structured detail of a non-success response.
// It unwraps to ErrAuthorizationRejected for 401 and 403 and to ErrAPI
// for everything else, so callers classify with errors.Is.
type StatusError struct {
	StatusCode int
	RequestID  string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote returned %d (request %s): %s", e.StatusCode, e.RequestID, e.Body)
	}
	return fmt.Sprintf("remote returned %d (request %s)", e.StatusCode, e.RequestID)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return ErrAuthorizationRejected
	}
	return ErrAPI
}
