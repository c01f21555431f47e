package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/remote"
)

// =============================================================================
// Window Read Tests
// =============================================================================

func TestHandleEvents_RemoteRead(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.items = []event.Event{
		{ID: "ev-b", Summary: "retro", Start: time.Now().Add(2 * time.Hour)},
		{ID: "ev-a", Summary: "standup", Start: time.Now().Add(time.Hour)},
	}
	f.fetcher.etag = `"v1"`

	w := f.do(t, http.MethodGet, "/v1/calendar/events?window=7", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[EventsResponse](t, w)
	assert.Equal(t, "calendar", resp.Resource)
	assert.Equal(t, 7, resp.WindowDays)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "remote", resp.Source)
	assert.False(t, resp.Degraded)
	assert.NotEmpty(t, resp.Key)

	// The accessor sorts before caching and responding.
	assert.Equal(t, "ev-a", resp.Items[0].ID)
	assert.Equal(t, "ev-b", resp.Items[1].ID)
}

func TestHandleEvents_SecondReadHitsWindowCache(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.items = []event.Event{{ID: "ev-1"}}

	first := f.do(t, http.MethodGet, "/v1/calendar/events", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.do(t, http.MethodGet, "/v1/calendar/events", nil)
	require.Equal(t, http.StatusOK, second.Code)

	resp := decodeBody[EventsResponse](t, second)
	assert.Equal(t, "cache", resp.Source)
	assert.Equal(t, 1, f.fetcher.count())
}

func TestHandleEvents_DefaultWindow(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)

	w := f.do(t, http.MethodGet, "/v1/calendar/events", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[EventsResponse](t, w)
	assert.Equal(t, DefaultWindowDays, resp.WindowDays)
}

func TestHandleEvents_ForceBypassesCache(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.items = []event.Event{{ID: "ev-1"}}

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodGet, "/v1/calendar/events?force=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[EventsResponse](t, w)
		assert.Equal(t, "remote", resp.Source)
	}

	assert.Equal(t, 2, f.fetcher.count())
}

func TestHandleEvents_EmptyWindowHasItemsArray(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.items = nil

	w := f.do(t, http.MethodGet, "/v1/calendar/events", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[EventsResponse](t, w)
	assert.Equal(t, 0, resp.Count)
	assert.False(t, resp.Degraded)
}

func TestHandleEvents_WindowValidation(t *testing.T) {
	f := newTestServer(t)

	cases := []struct {
		name  string
		query string
	}{
		{"not a number", "?window=soon"},
		{"zero", "?window=0"},
		{"negative", "?window=-3"},
		{"beyond horizon", "?window=120"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/v1/calendar/events"+tc.query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	assert.Equal(t, 0, f.fetcher.count())
}

func TestHandleEvents_NoTokenIsUnauthorized(t *testing.T) {
	f := newTestServer(t)
	f.refresher.err = credential.ErrNoTokenAvailable

	w := f.do(t, http.MethodGet, "/v1/calendar/events", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	resp := decodeErrors(t, w)
	require.NotEmpty(t, resp.Errors)
}

func TestHandleEvents_UpstreamFaultWithColdCache(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.err = remote.ErrNetwork

	w := f.do(t, http.MethodGet, "/v1/calendar/events", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleEvents_UpstreamFaultServesStale(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.items = []event.Event{{ID: "ev-1"}, {ID: "ev-2"}}

	first := f.do(t, http.MethodGet, "/v1/calendar/events", nil)
	require.Equal(t, http.StatusOK, first.Code)

	// The upstream dies; a forced read must fall back to the cached
	// window and flag it as degraded.
	f.fetcher.err = remote.ErrNetwork
	second := f.do(t, http.MethodGet, "/v1/calendar/events?force=true", nil)

	require.Equal(t, http.StatusOK, second.Code)
	resp := decodeBody[EventsResponse](t, second)
	assert.Equal(t, 2, resp.Count)
	assert.True(t, resp.Degraded)
}

func TestHandleEvents_PostNotAllowed(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodPost, "/v1/calendar/events", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// =============================================================================
// Page Read Tests
// =============================================================================

func TestHandleEventsPage_Read(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.items = []event.Event{{ID: "ev-1"}}

	w := f.do(t, http.MethodGet, "/v1/calendar/events/page?window=7&max_results=50", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[PageResponse](t, w)
	assert.Equal(t, "calendar", resp.Resource)
	assert.Equal(t, 1, resp.Count)
	assert.False(t, resp.HasMore)
	assert.Empty(t, resp.NextPageToken)
}

func TestHandleEventsPage_BypassesWindowCache(t *testing.T) {
	f := newTestServer(t)
	f.seedToken(t)
	f.fetcher.items = []event.Event{{ID: "ev-1"}}

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodGet, "/v1/calendar/events/page", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2, f.fetcher.count())
	assert.Equal(t, 0, f.cache.Stats().Total, "page reads must not populate the window cache")
}

func TestHandleEventsPage_MaxResultsValidation(t *testing.T) {
	f := newTestServer(t)

	for _, query := range []string{"?max_results=zero", "?max_results=0", "?max_results=-5"} {
		w := f.do(t, http.MethodGet, "/v1/calendar/events/page"+query, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "query %q", query)
	}
}

// =============================================================================
// Degraded Read Tests
// =============================================================================

func TestHandleEvents_OfflineWithColdCacheReturnsEmpty(t *testing.T) {
	f := newTestServer(t, withOffline())

	w := f.do(t, http.MethodGet, "/v1/calendar/events", nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[EventsResponse](t, w)
	assert.Equal(t, 0, resp.Count)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "offline", resp.Source)
	assert.Equal(t, 0, f.fetcher.count())
}
