// Package cache implements a time-windowed cache for remote resource
// items. Entries are keyed by resource and hour-bucketed time window,
// age through fresh and stale phases before expiring, and are evicted
// deterministically by priority when the cache is full.
package cache

import (
	"fmt"
	"time"
)

// Key identifies one cached window of a resource. Window bounds are
// truncated to the hour so that all requests made within the same
// hour for the same span share an entry.
type Key struct {
	Resource    string
	WindowStart time.Time
	WindowEnd   time.Time
}

// NewKey builds a Key from raw window bounds. Bounds are normalized
// to UTC and truncated to the hour.
func NewKey(resource string, start, end time.Time) Key {
	return Key{
		Resource:    resource,
		WindowStart: start.UTC().Truncate(time.Hour),
		WindowEnd:   end.UTC().Truncate(time.Hour),
	}
}

// String renders the canonical form used as the map key and in logs.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s",
		k.Resource,
		k.WindowStart.Format(time.RFC3339),
		k.WindowEnd.Format(time.RFC3339),
	)
}

// Span returns the window length.
func (k Key) Span() time.Duration {
	return k.WindowEnd.Sub(k.WindowStart)
}
