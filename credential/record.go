package credential

import (
	"time"

	"github.com/stephnangue/chronicle/helper"
)

// Record is the persisted credential material for one remote account.
type Record struct {
	// ID names this credential generation in logs and stores. A new
	// one is assigned whenever fresh token material arrives.
	ID string `json:"id,omitempty" mapstructure:"id"`

	AccessToken  string    `json:"access_token" mapstructure:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" mapstructure:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty" mapstructure:"token_type"`
	Expiry       time.Time `json:"expiry" mapstructure:"expiry"`
	Scopes       []string  `json:"scopes,omitempty" mapstructure:"scopes"`
	ObtainedAt   time.Time `json:"obtained_at" mapstructure:"obtained_at"`
}

// HasAccessToken reports whether any token material is present.
func (r *Record) HasAccessToken() bool {
	return r != nil && r.AccessToken != ""
}

// HasRefreshToken reports whether the record can be refreshed without
// user interaction.
func (r *Record) HasRefreshToken() bool {
	return r != nil && r.RefreshToken != ""
}

// ExpiresWithin reports whether the access token expires before
// now+buffer. Records without an expiry never expire.
func (r *Record) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	if r == nil || r.Expiry.IsZero() {
		return false
	}
	return !r.Expiry.After(now.Add(buffer))
}

// State classifies the record at the given instant. The buffer is
// subtracted from the token lifetime so callers refresh before the
// token actually dies mid-request.
func (r *Record) State(now time.Time, buffer time.Duration) TokenState {
	if !r.HasAccessToken() && !r.HasRefreshToken() {
		return StateNoToken
	}
	if r.HasAccessToken() && !r.ExpiresWithin(now, buffer) {
		return StateValid
	}
	if r.HasRefreshToken() {
		return StateExpiredRefreshable
	}
	return StateExpiredNotRefreshable
}

// TokenHash returns a short stable identity for the access token,
// safe to log and expose on status surfaces.
func (r *Record) TokenHash() string {
	if !r.HasAccessToken() {
		return ""
	}
	return helper.Get8BytesHash(r.AccessToken)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Scopes != nil {
		cp.Scopes = append([]string(nil), r.Scopes...)
	}
	return &cp
}
