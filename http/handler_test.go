package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephnangue/chronicle/cache"
	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/logger"
	"github.com/stephnangue/chronicle/remote"
)

func testLogger() logger.Logger {
	cfg := logger.DefaultConfig()
	cfg.Level = logger.Disabled
	return logger.NewLoggerWithWriter(cfg, io.Discard)
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int

	items []event.Event
	etag  string
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, token string, req remote.FetchRequest) (*remote.FetchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &remote.FetchResult{Items: f.items, ETag: f.etag}, nil
}

func (f *stubFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubRefresher struct {
	mu    sync.Mutex
	calls int

	rec *credential.Record
	err error
}

func (s *stubRefresher) Refresh(ctx context.Context, rec *credential.Record) (*credential.Record, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.rec.Clone(), nil
}

func (s *stubRefresher) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// serverFixture wires a real accessor and credential manager behind
// the handler, with only the upstream collaborators stubbed.
type serverFixture struct {
	handler   http.Handler
	core      *core.Core
	cache     *cache.Cache
	tokens    *credential.Manager
	store     *credential.InmemStore
	fetcher   *stubFetcher
	refresher *stubRefresher
}

type fixtureConfig struct {
	props   HandlerProperties
	offline bool
}

type fixtureOption func(*fixtureConfig)

func withRateLimit(rps float64, burst int) fixtureOption {
	return func(c *fixtureConfig) {
		c.props.RateLimit = rps
		c.props.RateBurst = burst
	}
}

func withReadCache(ttl time.Duration) fixtureOption {
	return func(c *fixtureConfig) {
		c.props.DisableReadCache = false
		c.props.ReadCacheTTL = ttl
	}
}

func withOffline() fixtureOption {
	return func(c *fixtureConfig) {
		c.offline = true
	}
}

func newTestServer(t *testing.T, opts ...fixtureOption) *serverFixture {
	t.Helper()
	log := testLogger()

	// Individual tests opt back in to the micro-cache and the rate
	// limiter; leaving them on by default would couple unrelated
	// tests through shared counters.
	fc := &fixtureConfig{props: HandlerProperties{DisableReadCache: true}}
	for _, opt := range opts {
		opt(fc)
	}

	store := credential.NewInmemStore()
	refresher := &stubRefresher{
		rec: &credential.Record{
			AccessToken: "refreshed-token",
			Expiry:      time.Now().Add(time.Hour),
		},
	}
	tokens, err := credential.NewManager(credential.DefaultConfig(), store, refresher, nil, log)
	require.NoError(t, err)

	ch := cache.New(cache.DefaultConfig(), log)
	fetcher := &stubFetcher{}
	c, err := core.New(core.Config{DisableBackgroundRefresh: true}, core.Deps{
		Cache:   ch,
		Tokens:  tokens,
		Fetcher: fetcher,
		Online:  remote.StaticChecker(!fc.offline),
		Logger:  log,
	})
	require.NoError(t, err)

	fc.props.Core = c
	fc.props.Tokens = tokens
	fc.props.Logger = log

	return &serverFixture{
		handler:   Handler(&fc.props),
		core:      c,
		cache:     ch,
		tokens:    tokens,
		store:     store,
		fetcher:   fetcher,
		refresher: refresher,
	}
}

// seedToken installs a valid credential so reads can reach the
// upstream without a refresh.
func (f *serverFixture) seedToken(t *testing.T) {
	t.Helper()
	err := f.tokens.SetToken(context.Background(), &credential.Record{
		AccessToken:  "seeded-token",
		RefreshToken: "seeded-refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

// newJSONRequest builds a request from a raw body, for tests that
// need malformed payloads Marshal could never produce.
func newJSONRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, strings.NewReader(body))
}

func doRequest(f *serverFixture, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func decodeErrors(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	return decodeBody[ErrorResponse](t, w)
}

// =============================================================================
// Routing Tests
// =============================================================================

func TestHandler_PathOutsideV1(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodGet, "/secret", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeErrors(t, w)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "path must begin with /v1/", resp.Errors[0])
}

func TestHandler_UnknownV1Path(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodGet, "/v1/sys/unknown", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeErrors(t, w)
	assert.Equal(t, "unsupported path", resp.Errors[0])
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodDelete, "/v1/sys/cache/stats", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandler_ResponsesAreJSON(t *testing.T) {
	f := newTestServer(t)

	w := f.do(t, http.MethodGet, "/v1/sys/health", nil)

	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

// =============================================================================
// Rate Limit Tests
// =============================================================================

func TestHandler_RateLimitRejectsBurst(t *testing.T) {
	// One request per second with a burst of 2: the third request in
	// the same instant must be rejected.
	f := newTestServer(t, withRateLimit(1, 2))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodGet, "/v1/sys/health", nil)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHandler_RateLimitIsPerClient(t *testing.T) {
	f := newTestServer(t, withRateLimit(1, 1))

	first := httptest.NewRequest(http.MethodGet, "/v1/sys/health", nil)
	first.RemoteAddr = "10.0.0.1:4000"
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, first)
	require.Equal(t, http.StatusOK, w.Code)

	// Same client is out of budget, a different client is not.
	again := httptest.NewRequest(http.MethodGet, "/v1/sys/health", nil)
	again.RemoteAddr = "10.0.0.1:4001"
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, again)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	other := httptest.NewRequest(http.MethodGet, "/v1/sys/health", nil)
	other.RemoteAddr = "10.0.0.2:4000"
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_RateLimitDisabledByDefault(t *testing.T) {
	f := newTestServer(t)

	for i := 0; i < 50; i++ {
		w := f.do(t, http.MethodGet, "/v1/sys/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
}

// =============================================================================
// Read Micro-Cache Tests
// =============================================================================

func TestHandler_ReadCacheAbsorbsRepeatedGets(t *testing.T) {
	f := newTestServer(t, withReadCache(time.Minute))
	f.seedToken(t)
	f.fetcher.items = []event.Event{{ID: "ev-1", Summary: "standup"}}

	w := f.do(t, http.MethodGet, "/v1/calendar/events?window=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))

	// ristretto applies sets asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		w = f.do(t, http.MethodGet, "/v1/calendar/events?window=7", nil)
		require.Equal(t, http.StatusOK, w.Code)
		if w.Header().Get("X-Cache") == "HIT" || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	resp := decodeBody[EventsResponse](t, w)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 1, f.fetcher.count(), "hits must not reach the upstream")
}

func TestHandler_ReadCacheSkipsForcedReads(t *testing.T) {
	f := newTestServer(t, withReadCache(time.Minute))
	f.seedToken(t)
	f.fetcher.items = []event.Event{{ID: "ev-1"}}

	for i := 0; i < 3; i++ {
		w := f.do(t, http.MethodGet, "/v1/calendar/events?force=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-Cache"))
	}

	assert.Equal(t, 3, f.fetcher.count())
}
