// Package core orchestrates the cache, the credential manager, and the
// remote fetcher into one read path for windowed resource queries. It
// owns the degrade policy: cached data is preferred over network trips,
// stale data is preferred over errors, and an unreachable upstream
// produces an empty answer rather than a failure.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stephnangue/chronicle/cache"
	"github.com/stephnangue/chronicle/credential"
	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/helper"
	"github.com/stephnangue/chronicle/logger"
	"github.com/stephnangue/chronicle/remote"
)

const (
	// DefaultMaxPages bounds how many pages one window fetch walks
	// before truncating.
	DefaultMaxPages = 20

	// DefaultRefreshLead is how close to going stale a cached entry
	// may be before a read schedules a background refetch for it.
	DefaultRefreshLead = time.Minute

	// DefaultBackgroundTimeout bounds one background refetch.
	DefaultBackgroundTimeout = 30 * time.Second
)

// Source identifies where a window answer came from.
type Source int

const (
	// SourceRemote means the items were fetched from the upstream.
	SourceRemote Source = iota

	// SourceCache means a fresh cache entry answered the read.
	SourceCache

	// SourceStaleCache means a stale entry was served, either because
	// the upstream is unreachable or because a live fetch failed.
	SourceStaleCache

	// SourceRevalidated means the upstream confirmed the cached entry
	// is still current and its freshness clock was restarted.
	SourceRevalidated

	// SourceOffline means nothing was available: the upstream is
	// unreachable and the cache holds nothing for the window.
	SourceOffline
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "cache"
	case SourceStaleCache:
		return "stale_cache"
	case SourceRevalidated:
		return "revalidated"
	case SourceOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Result carries a window answer plus how it was produced. Degraded
// marks answers that are known to be incomplete or out of date.
type Result struct {
	Items    []event.Event
	Key      cache.Key
	Source   Source
	Degraded bool
}

// TokenSource is the slice of the credential manager the accessor
// depends on.
type TokenSource interface {
	EnsureValid(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

var _ TokenSource = (*credential.Manager)(nil)

// Config holds accessor tunables.
type Config struct {
	// PageSize caps items per remote page. Zero lets the fetcher
	// choose its default.
	PageSize int

	// MaxPages bounds pagination per window fetch.
	MaxPages int

	// RefreshLead is how long before an entry goes stale that serving
	// it triggers a background refetch.
	RefreshLead time.Duration

	// BackgroundTimeout bounds one background refetch.
	BackgroundTimeout time.Duration

	// DisableBackgroundRefresh turns the near-stale refetch off.
	DisableBackgroundRefresh bool
}

// DefaultConfig returns the accessor defaults.
func DefaultConfig() Config {
	return Config{
		MaxPages:          DefaultMaxPages,
		RefreshLead:       DefaultRefreshLead,
		BackgroundTimeout: DefaultBackgroundTimeout,
	}
}

// Deps carries the collaborators the accessor orchestrates.
type Deps struct {
	Cache   *cache.Cache
	Tokens  TokenSource
	Fetcher remote.Fetcher

	// Online reports upstream reachability. Nil means assume online.
	Online remote.OnlineChecker

	Logger logger.Logger
}

// Core is the resource accessor. One instance serves a session; create
// it at startup and Stop it at shutdown.
type Core struct {
	cfg     Config
	cache   *cache.Cache
	tokens  TokenSource
	fetcher remote.Fetcher
	online  remote.OnlineChecker
	log     logger.Logger
	metrics *Metrics

	// refreshGroup collapses duplicate background refetches of the
	// same key; refreshWG lets Stop drain them.
	refreshGroup singleflight.Group
	refreshWG    sync.WaitGroup
	stopLock     sync.Mutex
	stopped      bool

	// now is replaceable in tests.
	now func() time.Time
}

// New creates an accessor from its collaborators.
func New(cfg Config, deps Deps) (*Core, error) {
	if deps.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Online == nil {
		deps.Online = remote.StaticChecker(true)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.RefreshLead <= 0 {
		cfg.RefreshLead = DefaultRefreshLead
	}
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = DefaultBackgroundTimeout
	}
	return &Core{
		cfg:     cfg,
		cache:   deps.Cache,
		tokens:  deps.Tokens,
		fetcher: deps.Fetcher,
		online:  deps.Online,
		log:     deps.Logger.WithSubsystem("core"),
		metrics: &Metrics{},
		now:     time.Now,
	}, nil
}

// Metrics returns the accessor's counters.
func (c *Core) Metrics() *Metrics {
	return c.metrics
}

// Cache returns the cache the accessor reads through.
func (c *Core) Cache() *cache.Cache {
	return c.cache
}

// Fetch returns the events in the forward-looking window for the
// resource, reading through the cache. force skips the cache fast path
// and always asks the upstream.
func (c *Core) Fetch(ctx context.Context, resource string, window event.Window, force bool) ([]event.Event, error) {
	res, err := c.FetchWindow(ctx, resource, window, force)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// FetchWindow is Fetch with provenance: the Result says whether the
// answer came from cache, the upstream, or a degraded path.
func (c *Core) FetchWindow(ctx context.Context, resource string, window event.Window, force bool) (*Result, error) {
	if resource == "" {
		return nil, fmt.Errorf("resource must not be empty")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	start, end := window.Bounds(c.now())
	key := cache.NewKey(resource, start, end)
	offline := !c.online.Online(ctx)

	// Fast path: a usable cache entry answers the read. Stale entries
	// are usable only when the upstream is unreachable anyway.
	if !force {
		if entry, ok := c.cache.GetEntry(key, offline); ok {
			return c.serveEntry(key, entry, offline), nil
		}
		if offline {
			return c.serveOffline(key), nil
		}
	} else if offline {
		// force asked for the upstream, but there is no path to it.
		// Degrade like an ordinary offline read instead of spending
		// the retry budget on a dead network.
		if entry, ok := c.cache.GetEntry(key, true); ok {
			return c.serveEntry(key, entry, true), nil
		}
		return c.serveOffline(key), nil
	}

	token, err := c.tokens.EnsureValid(ctx)
	var res *Result
	if err == nil {
		res, err = c.fetchRemote(ctx, token, key)
	}
	if err == nil {
		return res, nil
	}

	// A canceled caller does not want data, and a read needing the
	// user to re-authenticate must say so; everything else prefers a
	// cached answer over an error.
	if errors.Is(err, context.Canceled) || needsReauth(err) {
		return nil, err
	}
	if fallback, ok := c.staleFallback(key, err); ok {
		return fallback, nil
	}
	return nil, err
}

// FetchPage retrieves one page of a window scan straight from the
// upstream. It never consults or fills the cache: exhaustive listings
// would thrash the entries the windowed read path keeps warm.
func (c *Core) FetchPage(ctx context.Context, resource string, window event.Window, maxResults int, pageToken string) (*event.Page, error) {
	if resource == "" {
		return nil, fmt.Errorf("resource must not be empty")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	start, end := window.Bounds(c.now())
	req := remote.FetchRequest{
		Resource:  resource,
		Start:     start,
		End:       end,
		PageSize:  maxResults,
		PageToken: pageToken,
		RequestID: helper.GenerateRequestID(),
	}

	result, err := c.fetcher.Fetch(ctx, token, req)
	if err != nil && errors.Is(err, remote.ErrAuthorizationRejected) {
		token, err = c.retryToken(ctx, req.RequestID)
		if err == nil {
			result, err = c.fetcher.Fetch(ctx, token, req)
		}
	}
	if err != nil {
		return nil, err
	}

	c.metrics.IncrementRemoteFetches()
	items := result.Items
	event.SortByStart(items)
	return &event.Page{
		Items:         items,
		NextPageToken: result.NextPageToken,
		HasMore:       result.HasMore(),
	}, nil
}

// serveEntry answers a read from the cache and, when the entry is
// fresh but about to go stale, queues a background refetch so the next
// read stays on the fast path.
func (c *Core) serveEntry(key cache.Key, entry cache.Entry, offline bool) *Result {
	res := &Result{Items: entry.Items, Key: key, Source: SourceCache}
	if entry.Freshness == cache.Stale {
		res.Source = SourceStaleCache
		res.Degraded = true
		c.metrics.IncrementDegradedServes()
		c.log.Debug("serving stale window while offline",
			logger.String("key", key.String()),
			logger.Time("fetched_at", entry.FetchedAt),
		)
		return res
	}
	if !offline {
		c.maybeScheduleRefresh(key, entry)
	}
	return res
}

// serveOffline is the degraded success for an unreachable upstream
// with nothing cached: an empty answer, not an error.
func (c *Core) serveOffline(key cache.Key) *Result {
	c.metrics.IncrementOfflineServes()
	c.log.Info("offline with no cached window, serving empty result",
		logger.String("key", key.String()),
	)
	return &Result{Key: key, Source: SourceOffline, Degraded: true}
}

// staleFallback serves whatever unexpired entry the cache still holds
// for the key after a live fetch failed.
func (c *Core) staleFallback(key cache.Key, cause error) (*Result, bool) {
	entry, ok := c.cache.GetEntry(key, true)
	if !ok {
		return nil, false
	}
	c.metrics.IncrementDegradedServes()
	c.log.Warn("remote fetch failed, serving cached window",
		logger.String("key", key.String()),
		logger.String("freshness", entry.Freshness.String()),
		logger.Err(cause),
	)
	res := &Result{Items: entry.Items, Key: key, Source: SourceStaleCache, Degraded: true}
	if entry.Freshness == cache.Fresh {
		res.Source = SourceCache
	}
	return res, true
}

// fetchRemote runs the live fetch for one window: conditional request
// against the prior entry's etag, pagination, one forced token refresh
// if the upstream rejects the credential, then cache fill.
func (c *Core) fetchRemote(ctx context.Context, token string, key cache.Key) (*Result, error) {
	requestID := helper.GenerateRequestID()

	var etag string
	prior, hasPrior := c.cache.Peek(key)
	if hasPrior {
		etag = prior.ETag
	}

	out, err := c.fetchAllPages(ctx, token, key, etag, requestID)
	if err != nil && errors.Is(err, remote.ErrAuthorizationRejected) {
		token, err = c.retryToken(ctx, requestID)
		if err == nil {
			out, err = c.fetchAllPages(ctx, token, key, etag, requestID)
		}
	}
	if err != nil {
		return nil, err
	}

	if out.notModified {
		if hasPrior {
			// The upstream confirmed the cached items are current;
			// restart their freshness clock.
			c.metrics.IncrementRevalidations()
			c.cache.Put(key, prior.Items, prior.ETag)
			c.log.Debug("window unchanged upstream, revalidated cache entry",
				logger.String("key", key.String()),
				logger.String("request_id", requestID),
			)
			return &Result{Items: prior.Items, Key: key, Source: SourceRevalidated}, nil
		}
		// The entry vanished between Peek and the response. Refetch
		// without the validator.
		out, err = c.fetchAllPages(ctx, token, key, "", requestID)
		if err != nil {
			return nil, err
		}
	}

	event.SortByStart(out.items)
	c.cache.Put(key, out.items, out.etag)
	c.metrics.IncrementRemoteFetches()
	return &Result{Items: out.items, Key: key, Source: SourceRemote}, nil
}

// retryToken forces one refresh after the upstream rejected the access
// token. EnsureValid can hand out a token the server has since revoked.
func (c *Core) retryToken(ctx context.Context, requestID string) (string, error) {
	c.metrics.IncrementAuthRetries()
	c.log.Info("upstream rejected the access token, refreshing once",
		logger.String("request_id", requestID),
	)
	return c.tokens.ForceRefresh(ctx)
}

type pagedFetch struct {
	items       []event.Event
	etag        string
	notModified bool
}

// fetchAllPages walks the upstream pagination for one window. The etag
// applies to the first page only.
func (c *Core) fetchAllPages(ctx context.Context, token string, key cache.Key, etag, requestID string) (*pagedFetch, error) {
	req := remote.FetchRequest{
		Resource:  key.Resource,
		Start:     key.WindowStart,
		End:       key.WindowEnd,
		PageSize:  c.cfg.PageSize,
		ETag:      etag,
		RequestID: requestID,
	}

	out := &pagedFetch{}
	for page := 0; ; page++ {
		if page >= c.cfg.MaxPages {
			c.log.Warn("window has more pages than the fetch budget, truncating",
				logger.String("key", key.String()),
				logger.Int("max_pages", c.cfg.MaxPages),
			)
			break
		}
		result, err := c.fetcher.Fetch(ctx, token, req)
		if err != nil {
			return nil, err
		}
		if result.NotModified {
			out.notModified = true
			out.etag = result.ETag
			return out, nil
		}
		out.items = append(out.items, result.Items...)
		out.etag = result.ETag
		if !result.HasMore() {
			break
		}
		req.PageToken = result.NextPageToken
		req.ETag = ""
	}
	return out, nil
}

// needsReauth reports credential failures only the user can resolve.
// Hiding them behind cached data would stop re-authentication from
// ever being requested.
func needsReauth(err error) bool {
	return errors.Is(err, credential.ErrNoTokenAvailable) ||
		errors.Is(err, credential.ErrAuthorizationExpired)
}
