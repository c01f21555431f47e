package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/logger"
)

// TokenSetRequest represents the request body for installing a credential
type TokenSetRequest struct {
	// AccessToken is the bearer token; required unless RefreshToken
	// is set.
	AccessToken string `json:"access_token"`

	// RefreshToken, when present, lets the manager renew the access
	// token on its own.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType defaults to Bearer upstream when empty.
	TokenType string `json:"token_type,omitempty"`

	// Expiry is when the access token stops working.
	Expiry time.Time `json:"expiry,omitempty"`

	// ExpiresIn is the OAuth2 wire form of Expiry, in seconds from
	// now. Ignored when Expiry is set.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	// Scopes the token was granted.
	Scopes []string `json:"scopes,omitempty"`
}

// TokenSetResponse represents the response after installing a credential
type TokenSetResponse struct {
	Status credential.Status `json:"status"`
}

// TokenRefreshResponse represents the response from a forced refresh
type TokenRefreshResponse struct {
	Status credential.Status `json:"status"`
}

// TokenClearResponse represents the response from clearing the credential
type TokenClearResponse struct {
	Cleared bool `json:"cleared"`
}

// handleSysTokenStatus returns an HTTP handler for the
// /v1/sys/token/status endpoint. It handles:
//   - GET: Report the credential lifecycle state without touching the
//     network
func handleSysTokenStatus(m *credential.Manager, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			status, err := m.Status(r.Context())
			if err != nil {
				log.Error("failed to read credential status", logger.Err(err))
				respondError(w, http.StatusInternalServerError, "failed to read credential status")
				return
			}
			respondOk(w, &status)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysTokenRefresh returns an HTTP handler for the
// /v1/sys/token/refresh endpoint. It handles:
//   - PUT/POST: Force a refresh even if the current token still looks
//     valid
func handleSysTokenRefresh(m *credential.Manager, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			handleSysTokenRefreshPut(m, w, r, log)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysTokenRefreshPut handles PUT/POST /v1/sys/token/refresh.
// The fresh token itself never leaves the server; callers get the
// lifecycle status instead.
func handleSysTokenRefreshPut(m *credential.Manager, w http.ResponseWriter, r *http.Request, log logger.Logger) {
	if _, err := m.ForceRefresh(r.Context()); err != nil {
		log.Error("forced refresh failed", logger.Err(err))
		respondError(w, errorToStatusCode(err), err.Error())
		return
	}

	status, err := m.Status(r.Context())
	if err != nil {
		log.Error("failed to read credential status", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "failed to read credential status")
		return
	}
	respondOk(w, &TokenRefreshResponse{Status: status})
}

// handleSysToken returns an HTTP handler for the /v1/sys/token
// endpoint. It handles:
//   - PUT/POST: Install a credential delivered by a login flow
//   - DELETE: Remove the stored credential
func handleSysToken(m *credential.Manager, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			handleSysTokenPut(m, w, r, log)
		case http.MethodDelete:
			handleSysTokenDelete(m, w, r, log)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysTokenPut handles PUT/POST /v1/sys/token
func handleSysTokenPut(m *credential.Manager, w http.ResponseWriter, r *http.Request, log logger.Logger) {
	var req TokenSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to parse token request", logger.Err(err))
		respondError(w, http.StatusBadRequest, "failed to parse request body")
		return
	}
	if req.AccessToken == "" && req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "access_token or refresh_token is required")
		return
	}

	expiry := req.Expiry
	if expiry.IsZero() && req.ExpiresIn > 0 {
		expiry = time.Now().UTC().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	rec := &credential.Record{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       expiry,
		Scopes:       req.Scopes,
	}
	if err := m.SetToken(r.Context(), rec); err != nil {
		log.Error("failed to install credential", logger.Err(err))
		respondError(w, errorToStatusCode(err), err.Error())
		return
	}

	status, err := m.Status(r.Context())
	if err != nil {
		log.Error("failed to read credential status", logger.Err(err))
		respondError(w, http.StatusInternalServerError, "failed to read credential status")
		return
	}
	respondOk(w, &TokenSetResponse{Status: status})
}

// handleSysTokenDelete handles DELETE /v1/sys/token
func handleSysTokenDelete(m *credential.Manager, w http.ResponseWriter, r *http.Request, log logger.Logger) {
	if err := m.Clear(r.Context()); err != nil {
		log.Error("failed to clear credential", logger.Err(err))
		respondError(w, errorToStatusCode(err), err.Error())
		return
	}
	respondOk(w, &TokenClearResponse{Cleared: true})
}
