package http

import (
	"net/http"

	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/logger"
)

// HealthResponse represents the response from the health endpoint
type HealthResponse struct {
	// Status is "ok" when the credential can serve requests,
	// "degraded" otherwise. Degraded still answers 200: the server
	// keeps serving cached windows without a usable token.
	Status string `json:"status"`

	// TokenState is the credential lifecycle state
	TokenState string `json:"token_state"`

	// TokenUsable reports whether reads can reach the upstream
	TokenUsable bool `json:"token_usable"`

	// CacheEntries is how many windows are currently cached
	CacheEntries int `json:"cache_entries"`
}

// handleSysHealth returns an HTTP handler for the /v1/sys/health
// endpoint. It handles:
//   - GET/HEAD: Report liveness plus a credential and cache summary
func handleSysHealth(c *core.Core, m *credential.Manager, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			handleSysHealthGet(c, m, w, r, log)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysHealthGet handles GET/HEAD /v1/sys/health. A store fault
// still answers 200 so that probes keep the process alive while it
// serves from cache.
func handleSysHealthGet(c *core.Core, m *credential.Manager, w http.ResponseWriter, r *http.Request, log logger.Logger) {
	status := "ok"

	state, err := m.State(r.Context())
	if err != nil {
		log.Warn("failed to derive credential state", logger.Err(err))
		status = "degraded"
	} else if !state.Usable() && !state.Recoverable() {
		status = "degraded"
	}

	respondOk(w, &HealthResponse{
		Status:       status,
		TokenState:   state.String(),
		TokenUsable:  state.Usable(),
		CacheEntries: c.Cache().Stats().Total,
	})
}
