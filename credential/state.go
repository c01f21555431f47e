package credential

import (
	"encoding/json"
	"fmt"
)

// TokenState summarizes where a credential record sits in its
// lifecycle. It drives both the manager's decisions and what the
// status surfaces report to operators.
type TokenState int

const (
	// StateNoToken means no record has ever been stored.
	StateNoToken TokenState = iota

	// StateValid means the access token is usable as-is.
	StateValid

	// StateExpiredRefreshable means the access token has expired (or
	// is about to) but a refresh token is present, so the manager can
	// mint a new one without user interaction.
	StateExpiredRefreshable

	// StateExpiredNotRefreshable means the access token has expired
	// and no refresh is possible; the user must authorize again.
	StateExpiredNotRefreshable

	// StateError means the last refresh attempt failed in a way that
	// leaves the record's usability unknown.
	StateError
)

func (s TokenState) String() string {
	switch s {
	case StateNoToken:
		return "no_token"
	case StateValid:
		return "valid"
	case StateExpiredRefreshable:
		return "expired_refreshable"
	case StateExpiredNotRefreshable:
		return "expired_not_refreshable"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Usable reports whether a credential in this state can authenticate
// a request right now.
func (s TokenState) Usable() bool {
	return s == StateValid
}

// Recoverable reports whether the manager can move a credential in
// this state back to valid on its own.
func (s TokenState) Recoverable() bool {
	return s == StateValid || s == StateExpiredRefreshable || s == StateError
}

// ParseTokenState maps the wire form of a state back to its constant.
func ParseTokenState(raw string) (TokenState, error) {
	switch raw {
	case "no_token":
		return StateNoToken, nil
	case "valid":
		return StateValid, nil
	case "expired_refreshable":
		return StateExpiredRefreshable, nil
	case "expired_not_refreshable":
		return StateExpiredNotRefreshable, nil
	case "error":
		return StateError, nil
	}
	return StateNoToken, fmt.Errorf("unknown token state %q", raw)
}

// MarshalJSON encodes the state as its string form so status payloads
// stay readable without a lookup table.
func (s TokenState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TokenState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state, err := ParseTokenState(raw)
	if err != nil {
		return err
	}
	*s = state
	return nil
}
