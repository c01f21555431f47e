package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/stephnangue/chronicle/event"
	"github.com/stephnangue/chronicle/logger"
)

const (
	// DefaultCapacity is the maximum number of windows kept by default.
	DefaultCapacity = 20

	// DefaultTTL is how long an entry lives before expiring, prior to
	// priority scaling.
	DefaultTTL = 15 * time.Minute

	// DefaultStaleAfter is the age at which an entry stops being fresh
	// and becomes stale but still servable.
	DefaultStaleAfter = 5 * time.Minute
)

// Freshness describes how old a returned entry is relative to its
// thresholds.
type Freshness int

const (
	// Fresh entries are younger than the stale threshold and can be
	// served without revalidation.
	Fresh Freshness = iota
	// Stale entries are past the stale threshold but not yet expired.
	// They are servable while a background refresh runs.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Config holds cache construction parameters. Zero values fall back
// to the package defaults.
type Config struct {
	Capacity   int
	TTL        time.Duration
	StaleAfter time.Duration
}

// DefaultConfig returns the standard cache sizing.
func DefaultConfig() Config {
	return Config{
		Capacity:   DefaultCapacity,
		TTL:        DefaultTTL,
		StaleAfter: DefaultStaleAfter,
	}
}

// Entry is the exported view of a cached window returned by GetEntry
// and Entries.
type Entry struct {
	Key       Key           `json:"key"`
	Items     []event.Event `json:"items"`
	ETag      string        `json:"etag,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
	Priority  Priority      `json:"-"`
	Freshness Freshness     `json:"-"`
	// StaleAt is when the entry stops satisfying strict reads.
	StaleAt time.Time `json:"stale_at"`
	// ExpiresAt is when the entry will be dropped, after priority
	// scaling of the TTL.
	ExpiresAt time.Time `json:"expires_at"`
}

type cacheEntry struct {
	key       Key
	items     []event.Event
	etag      string
	fetchedAt time.Time
	priority  Priority
}

// Cache is a fixed-capacity, time-windowed item cache. All methods
// are safe for concurrent use. Expired entries are removed lazily on
// access, so reads at a fixed instant are idempotent.
type Cache struct {
	lock    sync.RWMutex
	entries map[string]*cacheEntry
	cfg     Config
	log     logger.Logger
	metrics *Metrics

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Cache with the given configuration. Out-of-range
// values are replaced with defaults.
func New(cfg Config, log logger.Logger) *Cache {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		cfg:     cfg,
		log:     log.WithSubsystem("cache"),
		metrics: &Metrics{},
		now:     time.Now,
	}
}

func (c *Cache) effectiveTTL(p Priority) time.Duration {
	return time.Duration(float64(c.cfg.TTL) * p.TTLMultiplier())
}

// An entry expires strictly after its effective TTL has elapsed.
func (c *Cache) expired(e *cacheEntry, now time.Time) bool {
	return now.Sub(e.fetchedAt) > c.effectiveTTL(e.priority)
}

func (c *Cache) freshness(e *cacheEntry, now time.Time) Freshness {
	if now.Sub(e.fetchedAt) < c.cfg.StaleAfter {
		return Fresh
	}
	return Stale
}

// GetEntry looks up a window and returns its full entry view. A fresh
// entry is always returned; a stale one only when allowStale is set.
// Expired entries are removed and reported as a miss either way.
func (c *Cache) GetEntry(key Key, allowStale bool) (Entry, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	ks := key.String()
	e, ok := c.entries[ks]
	if !ok {
		c.metrics.IncrementMisses()
		return Entry{}, false
	}
	if c.expired(e, now) {
		delete(c.entries, ks)
		c.metrics.AddExpirations(1)
		c.metrics.IncrementMisses()
		c.log.Debug("entry expired on read", logger.String("key", ks))
		return Entry{}, false
	}

	f := c.freshness(e, now)
	if f == Stale && !allowStale {
		c.metrics.IncrementMisses()
		return Entry{}, false
	}
	if f == Fresh {
		c.metrics.IncrementHits()
	} else {
		c.metrics.IncrementStaleHits()
	}
	return c.viewLocked(e, f), true
}

// Get looks up a window and returns its items.
func (c *Cache) Get(key Key, allowStale bool) ([]event.Event, bool) {
	entry, ok := c.GetEntry(key, allowStale)
	if !ok {
		return nil, false
	}
	return entry.Items, true
}

// Peek returns any non-expired entry, stale or fresh, without counting
// toward hit or miss metrics. The accessor uses it to harvest the ETag
// for conditional fetches.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	ks := key.String()
	e, ok := c.entries[ks]
	if !ok {
		return Entry{}, false
	}
	if c.expired(e, now) {
		delete(c.entries, ks)
		c.metrics.AddExpirations(1)
		return Entry{}, false
	}
	return c.viewLocked(e, c.freshness(e, now)), true
}

// IsCached reports whether a usable entry exists for the key: any
// non-expired entry when allowStale is set, otherwise only a fresh
// one. It does not count toward hit or miss metrics.
func (c *Cache) IsCached(key Key, allowStale bool) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	ks := key.String()
	e, ok := c.entries[ks]
	if !ok {
		return false
	}
	now := c.now()
	if c.expired(e, now) {
		delete(c.entries, ks)
		c.metrics.AddExpirations(1)
		return false
	}
	return allowStale || c.freshness(e, now) == Fresh
}

// Put stores items for a window, replacing any existing entry. The
// entry's priority follows from the window's span. When the cache is
// full, expired entries are swept first, then the lowest-priority,
// oldest entry is evicted.
func (c *Cache) Put(key Key, items []event.Event, etag string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	ks := key.String()
	priority := PriorityForSpan(key.Span())

	stored := make([]event.Event, len(items))
	copy(stored, items)

	if e, ok := c.entries[ks]; ok {
		e.items = stored
		e.etag = etag
		e.fetchedAt = now
		e.priority = priority
		c.metrics.IncrementPuts()
		return
	}

	if len(c.entries) >= c.cfg.Capacity {
		c.makeRoomLocked(now)
	}

	c.entries[ks] = &cacheEntry{
		key:       key,
		items:     stored,
		etag:      etag,
		fetchedAt: now,
		priority:  priority,
	}
	c.metrics.IncrementPuts()
	c.log.Debug("entry stored",
		logger.String("key", ks),
		logger.Int("items", len(stored)),
		logger.String("priority", priority.String()),
	)
}

// makeRoomLocked frees at least one slot. Expired entries go first;
// if none were expired, the victim is the lowest-priority entry with
// the oldest fetch time, with the key string as a final tiebreak so
// eviction is deterministic.
func (c *Cache) makeRoomLocked(now time.Time) {
	var swept int64
	for ks, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, ks)
			swept++
		}
	}
	if swept > 0 {
		c.metrics.AddExpirations(swept)
	}
	if len(c.entries) < c.cfg.Capacity {
		return
	}

	var victimKey string
	var victim *cacheEntry
	for ks, e := range c.entries {
		if victim == nil {
			victimKey, victim = ks, e
			continue
		}
		if e.priority != victim.priority {
			if e.priority < victim.priority {
				victimKey, victim = ks, e
			}
			continue
		}
		if !e.fetchedAt.Equal(victim.fetchedAt) {
			if e.fetchedAt.Before(victim.fetchedAt) {
				victimKey, victim = ks, e
			}
			continue
		}
		if ks < victimKey {
			victimKey, victim = ks, e
		}
	}
	if victim != nil {
		delete(c.entries, victimKey)
		c.metrics.AddEvictions(1)
		c.log.Debug("entry evicted",
			logger.String("key", victimKey),
			logger.String("priority", victim.priority.String()),
		)
	}
}

// Invalidate removes a single window. It returns whether an entry was
// present, expired or not.
func (c *Cache) Invalidate(key Key) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	ks := key.String()
	if _, ok := c.entries[ks]; !ok {
		return false
	}
	delete(c.entries, ks)
	return true
}

// InvalidateResource removes every window belonging to a resource and
// returns how many were dropped.
func (c *Cache) InvalidateResource(resource string) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	var dropped int
	for ks, e := range c.entries {
		if e.key.Resource == resource {
			delete(c.entries, ks)
			dropped++
		}
	}
	if dropped > 0 {
		c.log.Info("resource invalidated",
			logger.String("resource", resource),
			logger.Int("dropped", dropped),
		)
	}
	return dropped
}

// Clear drops every entry and returns how many were removed.
func (c *Cache) Clear() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*cacheEntry)
	if n > 0 {
		c.log.Info("cache cleared", logger.Int("dropped", n))
	}
	return n
}

// Entries returns a snapshot of all live entries sorted by key.
// Expired entries are swept as a side effect.
func (c *Cache) Entries() []Entry {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	c.sweepLocked(now)

	keys := make([]string, 0, len(c.entries))
	for ks := range c.entries {
		keys = append(keys, ks)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, ks := range keys {
		e := c.entries[ks]
		out = append(out, c.viewLocked(e, c.freshness(e, now)))
	}
	return out
}

// Stats returns current occupancy broken down by freshness and
// priority, plus the cumulative counters. Expired entries are swept
// first so the breakdown covers servable windows only.
func (c *Cache) Stats() Stats {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	c.sweepLocked(now)

	byPriority := map[string]int{}
	var fresh, stale int
	for _, e := range c.entries {
		if c.freshness(e, now) == Fresh {
			fresh++
		} else {
			stale++
		}
		byPriority[e.priority.String()]++
	}

	snap := c.metrics.GetSnapshot()
	return Stats{
		Total:       len(c.entries),
		Fresh:       fresh,
		Stale:       stale,
		Capacity:    c.cfg.Capacity,
		ByPriority:  byPriority,
		Hits:        snap["hits"],
		StaleHits:   snap["stale_hits"],
		Misses:      snap["misses"],
		Puts:        snap["puts"],
		Evictions:   snap["evictions"],
		Expirations: snap["expirations"],
	}
}

func (c *Cache) sweepLocked(now time.Time) {
	var swept int64
	for ks, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, ks)
			swept++
		}
	}
	if swept > 0 {
		c.metrics.AddExpirations(swept)
	}
}

func (c *Cache) viewLocked(e *cacheEntry, f Freshness) Entry {
	items := make([]event.Event, len(e.items))
	copy(items, e.items)
	return Entry{
		Key:       e.key,
		Items:     items,
		ETag:      e.etag,
		FetchedAt: e.fetchedAt,
		Priority:  e.priority,
		Freshness: f,
		StaleAt:   e.fetchedAt.Add(c.cfg.StaleAfter),
		ExpiresAt: e.fetchedAt.Add(c.effectiveTTL(e.priority)),
	}
}
