package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/stephnangue/chronicle/cache"
	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/logger"
)

// CacheStatsResponse represents the response from the cache stats endpoint
type CacheStatsResponse struct {
	// Stats is the point-in-time cache view, including hit counters
	Stats cache.Stats `json:"stats"`

	// Summary is the one-line rendering logs and the CLI display
	Summary string `json:"summary"`
}

// CacheEntrySummary describes one cached window without its items
type CacheEntrySummary struct {
	Key       string    `json:"key"`
	Count     int       `json:"count"`
	ETag      string    `json:"etag,omitempty"`
	Priority  string    `json:"priority"`
	Freshness string    `json:"freshness"`
	FetchedAt time.Time `json:"fetched_at"`
	StaleAt   time.Time `json:"stale_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CacheEntriesResponse represents the response from the cache entries endpoint
type CacheEntriesResponse struct {
	Entries []CacheEntrySummary `json:"entries"`
}

// CacheClearResponse represents the response from the cache clear endpoint
type CacheClearResponse struct {
	// Cleared is how many entries were dropped
	Cleared int `json:"cleared"`
}

// CacheInvalidateRequest represents the request body for cache invalidation
type CacheInvalidateRequest struct {
	// Resource drops every cached window of that resource
	Resource string `json:"resource"`
}

// CacheInvalidateResponse represents the response from cache invalidation
type CacheInvalidateResponse struct {
	// Invalidated is how many entries were dropped
	Invalidated int `json:"invalidated"`
}

// handleSysCacheStats returns an HTTP handler for the
// /v1/sys/cache/stats endpoint. It handles:
//   - GET: Report entry counts, freshness breakdown and hit counters
func handleSysCacheStats(c *core.Core, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			stats := c.Cache().Stats()
			respondOk(w, &CacheStatsResponse{
				Stats:   stats,
				Summary: stats.String(),
			})
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysCacheEntries returns an HTTP handler for the
// /v1/sys/cache/entries endpoint. It handles:
//   - GET: List cached windows, sorted by key, without their items
func handleSysCacheEntries(c *core.Core, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			entries := c.Cache().Entries()
			out := make([]CacheEntrySummary, 0, len(entries))
			for _, e := range entries {
				out = append(out, CacheEntrySummary{
					Key:       e.Key.String(),
					Count:     len(e.Items),
					ETag:      e.ETag,
					Priority:  e.Priority.String(),
					Freshness: e.Freshness.String(),
					FetchedAt: e.FetchedAt,
					StaleAt:   e.StaleAt,
					ExpiresAt: e.ExpiresAt,
				})
			}
			respondOk(w, &CacheEntriesResponse{Entries: out})
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysCacheClear returns an HTTP handler for the
// /v1/sys/cache/clear endpoint. It handles:
//   - PUT/POST: Drop every cached window
func handleSysCacheClear(c *core.Core, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			cleared := c.Cache().Clear()
			log.Info("cache cleared", logger.Int("entries", cleared))
			respondOk(w, &CacheClearResponse{Cleared: cleared})
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysCacheInvalidate returns an HTTP handler for the
// /v1/sys/cache/invalidate endpoint. It handles:
//   - PUT/POST: Drop every cached window of one resource
func handleSysCacheInvalidate(c *core.Core, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut, http.MethodPost:
			handleSysCacheInvalidatePut(c, w, r, log)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleSysCacheInvalidatePut handles PUT/POST /v1/sys/cache/invalidate
func handleSysCacheInvalidatePut(c *core.Core, w http.ResponseWriter, r *http.Request, log logger.Logger) {
	var req CacheInvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to parse invalidate request", logger.Err(err))
		respondError(w, http.StatusBadRequest, "failed to parse request body")
		return
	}
	if req.Resource == "" {
		respondError(w, http.StatusBadRequest, "resource is required")
		return
	}

	dropped := c.Cache().InvalidateResource(req.Resource)
	log.Info("cache invalidated",
		logger.String("resource", req.Resource),
		logger.Int("entries", dropped))

	respondOk(w, &CacheInvalidateResponse{Invalidated: dropped})
}
