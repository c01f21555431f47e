package http

import (
	"bytes"
	"net"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/stephnangue/chronicle/logger"
)

const (
	// DefaultRateBurst is the per-client bucket size when the
	// listener enables rate limiting without choosing one.
	DefaultRateBurst = 50

	// DefaultReadCacheTTL is how long a GET response stays in the
	// micro-cache. It only needs to outlive a burst, not a window.
	DefaultReadCacheTTL = 2 * time.Second

	// limiterIdleTTL is how long an idle client keeps its limiter.
	limiterIdleTTL = 10 * time.Minute

	// limiterMaxClients bounds the limiter table.
	limiterMaxClients = 4096

	// readCacheMaxBytes bounds the micro-cache payload budget.
	readCacheMaxBytes = 8 << 20
)

// requestLogger logs one line per completed request.
func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			fields := []logger.TypedField{
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", ww.Status()),
				logger.Int("bytes", ww.BytesWritten()),
				logger.Duration("duration", time.Since(start)),
				logger.String("remote", r.RemoteAddr),
				logger.String("request_id", middleware.GetReqID(r.Context())),
			}

			// Health probes fire every few seconds; keep them out of
			// the access log unless debugging.
			if r.URL.Path == "/v1/sys/health" {
				log.Debug("request completed", fields...)
				return
			}
			log.Info("request completed", fields...)
		})
	}
}

// perClientLimiter holds one token bucket per client address. Idle
// clients age out of the table after limiterIdleTTL.
type perClientLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

func newPerClientLimiter(rps float64, burst int) *perClientLimiter {
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	return &perClientLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterMaxClients, nil, limiterIdleTTL),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

func (p *perClientLimiter) allow(addr string) bool {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	lim, ok := p.limiters.Get(addr)
	if !ok {
		// Two first requests can race here; the losing limiter is
		// simply dropped.
		lim = rate.NewLimiter(p.limit, p.burst)
		p.limiters.Add(addr, lim)
	}
	return lim.Allow()
}

// rateLimit rejects clients that exceed the per-address budget. The
// limiter keys on RemoteAddr, which the RealIP middleware has already
// rewritten to the originating client.
func rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := newPerClientLimiter(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(r.RemoteAddr) {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cachedResponse is one stored GET answer.
type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

// readCache absorbs request bursts on the read endpoints: identical
// GETs within the TTL are answered from memory without touching the
// accessor. Its TTL is deliberately tiny; window-level caching with
// staleness rules lives in the cache package, not here.
type readCache struct {
	cache *ristretto.Cache[string, cachedResponse]
	ttl   time.Duration
}

func newReadCache(ttl time.Duration) (*readCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, cachedResponse]{
		NumCounters: 10_000,
		MaxCost:     readCacheMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &readCache{cache: c, ttl: ttl}, nil
}

// middleware serves repeated GETs from the stored answer. Forced
// reads bypass the stored answer and do not replace it.
func (rc *readCache) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || parseBool(r, "force") {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if resp, ok := rc.cache.Get(key); ok {
			w.Header().Set("Content-Type", resp.contentType)
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(resp.status)
			w.Write(resp.body)
			return
		}

		rec := &teeResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK {
			rc.cache.SetWithTTL(key, cachedResponse{
				status:      rec.status,
				contentType: rec.Header().Get("Content-Type"),
				body:        rec.buf.Bytes(),
			}, int64(rec.buf.Len()), rc.ttl)
		}
	})
}

// teeResponseWriter copies the response body while it streams out.
type teeResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (t *teeResponseWriter) WriteHeader(status int) {
	if t.wroteHeader {
		return
	}
	t.wroteHeader = true
	t.status = status
	t.ResponseWriter.WriteHeader(status)
}

func (t *teeResponseWriter) Write(p []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	t.buf.Write(p)
	return t.ResponseWriter.Write(p)
}
