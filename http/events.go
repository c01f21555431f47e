package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/logger"
)

// DefaultWindowDays is the query horizon used when the caller does not
// pass a window parameter.
const DefaultWindowDays = 7

// EventsResponse represents the response from a window read
type EventsResponse struct {
	// Resource is the collection the events belong to
	Resource string `json:"resource"`

	// WindowDays is the horizon the read covered
	WindowDays int `json:"window_days"`

	// Items holds the events, ordered by start time
	Items []event.Event `json:"items"`

	// Count is len(Items), kept explicit for shell consumers
	Count int `json:"count"`

	// Source reports where the answer came from:
	// remote, cache, stale_cache, revalidated or offline
	Source string `json:"source"`

	// Degraded marks answers known to be incomplete or out of date
	Degraded bool `json:"degraded"`

	// Key is the cache key the window mapped to
	Key string `json:"key"`
}

// PageResponse represents one page of a paginated scan
type PageResponse struct {
	Resource string `json:"resource"`

	WindowDays int `json:"window_days"`

	Items []event.Event `json:"items"`

	Count int `json:"count"`

	// NextPageToken continues the scan; empty on the last page
	NextPageToken string `json:"next_page_token,omitempty"`

	HasMore bool `json:"has_more"`
}

// handleEvents returns an HTTP handler for the /v1/{resource}/events
// endpoint. It handles:
//   - GET: Read the window through the cache and degrade policy
func handleEvents(c *core.Core, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleEventsGet(c, w, r, log)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleEventsGet handles GET /v1/{resource}/events
func handleEventsGet(c *core.Core, w http.ResponseWriter, r *http.Request, log logger.Logger) {
	resource := chi.URLParam(r, "resource")

	window, ok := parseWindow(w, r)
	if !ok {
		return
	}
	force := parseBool(r, "force")

	res, err := c.FetchWindow(r.Context(), resource, window, force)
	if err != nil {
		log.Error("window read failed",
			logger.String("resource", resource),
			logger.Int("window_days", window.Days()),
			logger.Err(err))
		respondError(w, errorToStatusCode(err), err.Error())
		return
	}

	respondOk(w, &EventsResponse{
		Resource:   resource,
		WindowDays: window.Days(),
		Items:      res.Items,
		Count:      len(res.Items),
		Source:     res.Source.String(),
		Degraded:   res.Degraded,
		Key:        res.Key.String(),
	})
}

// handleEventsPage returns an HTTP handler for the
// /v1/{resource}/events/page endpoint. It handles:
//   - GET: Read one page directly from the upstream, bypassing the cache
func handleEventsPage(c *core.Core, log logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleEventsPageGet(c, w, r, log)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

// handleEventsPageGet handles GET /v1/{resource}/events/page
func handleEventsPageGet(c *core.Core, w http.ResponseWriter, r *http.Request, log logger.Logger) {
	resource := chi.URLParam(r, "resource")

	window, ok := parseWindow(w, r)
	if !ok {
		return
	}

	maxResults := 0
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "max_results must be a positive integer")
			return
		}
		maxResults = n
	}
	pageToken := r.URL.Query().Get("page_token")

	page, err := c.FetchPage(r.Context(), resource, window, maxResults, pageToken)
	if err != nil {
		log.Error("page read failed",
			logger.String("resource", resource),
			logger.Int("window_days", window.Days()),
			logger.Err(err))
		respondError(w, errorToStatusCode(err), err.Error())
		return
	}

	respondOk(w, &PageResponse{
		Resource:      resource,
		WindowDays:    window.Days(),
		Items:         page.Items,
		Count:         len(page.Items),
		NextPageToken: page.NextPageToken,
		HasMore:       page.HasMore,
	})
}

// parseWindow reads the window query parameter. A missing parameter
// falls back to DefaultWindowDays; an unparseable or out-of-range one
// writes a 400 and reports !ok.
func parseWindow(w http.ResponseWriter, r *http.Request) (event.Window, bool) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return event.Window(DefaultWindowDays), true
	}

	days, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "window must be an integer number of days")
		return 0, false
	}
	window := event.Window(days)
	if err := window.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return window, true
}

// parseBool reads a boolean query parameter; absent means false.
func parseBool(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "t", "true", "yes":
		return true
	default:
		return false
	}
}
