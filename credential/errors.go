package credential

import "errors"

var (
	// ErrNoTokenAvailable is returned when no credential record exists
	// and none can be obtained without user interaction.
	ErrNoTokenAvailable = errors.New("no token available")

	// ErrAuthorizationExpired is returned when the stored authorization
	// is expired and cannot be refreshed; the user must sign in again.
	ErrAuthorizationExpired = errors.New("authorization expired")

	// ErrNetwork is returned when a refresh or validation attempt could
	// not reach the authorization server.
	ErrNetwork = errors.New("network error")

	// ErrRefreshFailed is returned when the authorization server
	// answered a refresh attempt with a non-retryable failure.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrUnknown is returned for failures that fit no other category.
	ErrUnknown = errors.New("unknown credential error")

	// ErrRecordNotFound is returned by stores when no credential record
	// has been saved.
	ErrRecordNotFound = errors.New("credential record not found")
)

// Retryable reports whether an error from this package is worth
// retrying. Only transport-level and unclassified failures are; an
// expired authorization or a server-side rejection will not get
// better by asking again.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrNetwork):
		return true
	case errors.Is(err, ErrUnknown):
		return true
	default:
		return false
	}
}
