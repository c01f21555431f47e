package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stephnangue/chronicle/core"
	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/logger"
)

// HandlerProperties contains configuration for the HTTP handler
type HandlerProperties struct {
	Core   *core.Core
	Tokens *credential.Manager
	Logger logger.Logger

	// RateLimit caps requests per second per client address; zero
	// disables limiting. RateBurst falls back to DefaultRateBurst.
	RateLimit float64
	RateBurst int

	// ReadCacheTTL bounds the GET micro-cache; zero applies
	// DefaultReadCacheTTL. DisableReadCache turns it off entirely.
	ReadCacheTTL     time.Duration
	DisableReadCache bool
}

// Handler creates and returns the main HTTP handler for Chronicle.
func Handler(props *HandlerProperties) http.Handler {
	c := props.Core
	tokens := props.Tokens
	log := props.Logger

	r := chi.NewRouter()

	// Client IP first so later middleware and handlers see the
	// originating address, not the proxy's.
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	if props.RateLimit > 0 {
		r.Use(rateLimit(props.RateLimit, props.RateBurst))
	}

	r.Route("/v1", func(r chi.Router) {
		// System endpoints - diagnostics and credential control
		r.Handle("/sys/health", handleSysHealth(c, tokens, log))
		r.Handle("/sys/cache/stats", handleSysCacheStats(c, log))
		r.Handle("/sys/cache/entries", handleSysCacheEntries(c, log))
		r.Handle("/sys/cache/clear", handleSysCacheClear(c, log))
		r.Handle("/sys/cache/invalidate", handleSysCacheInvalidate(c, log))
		r.Handle("/sys/token", handleSysToken(tokens, log))
		r.Handle("/sys/token/status", handleSysTokenStatus(tokens, log))
		r.Handle("/sys/token/refresh", handleSysTokenRefresh(tokens, log))

		// Resource endpoints - reads go through the accessor
		r.Group(func(r chi.Router) {
			if rc := buildReadCache(props, log); rc != nil {
				r.Use(rc.middleware)
			}
			r.Handle("/{resource}/events", handleEvents(c, log))
			r.Handle("/{resource}/events/page", handleEventsPage(c, log))
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		if !strings.HasPrefix(req.URL.Path, "/v1/") {
			respondError(w, http.StatusNotFound, "path must begin with /v1/")
			return
		}
		respondError(w, http.StatusNotFound, "unsupported path")
	})

	return r
}

// buildReadCache constructs the GET micro-cache, or nil when it is
// disabled or cannot be built.
func buildReadCache(props *HandlerProperties, log logger.Logger) *readCache {
	if props.DisableReadCache {
		return nil
	}
	ttl := props.ReadCacheTTL
	if ttl <= 0 {
		ttl = DefaultReadCacheTTL
	}
	rc, err := newReadCache(ttl)
	if err != nil {
		log.Warn("read micro-cache disabled", logger.Err(err))
		return nil
	}
	return rc
}
