package event

import (
	"fmt"
	"sort"
	"time"
)

// Event is a single calendar entry as served by the remote events API.
// Instances are treated as immutable snapshots: the access layer never
// mutates an event after it has been fetched.
type Event struct {
	ID          string    `json:"id"`
	Status      string    `json:"status,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	Updated     time.Time `json:"updated,omitempty"`
}

// SortByStart orders events chronologically, ties broken by ID so that
// repeated fetches of the same window produce identical sequences.
func SortByStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
}

// Page is one slice of a paged scan over a resource's events.
type Page struct {
	Items         []Event `json:"items"`
	NextPageToken string  `json:"next_page_token,omitempty"`
	HasMore       bool    `json:"has_more"`
}

// MaxWindowDays caps how far ahead a single query may look.
const MaxWindowDays = 92

// Window is a forward-looking query horizon measured in whole days.
type Window int

// Days returns the horizon length in days.
func (w Window) Days() int {
	return int(w)
}

// Validate reports whether the window is usable for a remote query.
func (w Window) Validate() error {
	if w < 1 {
		return fmt.Errorf("window must be at least 1 day, got %d", int(w))
	}
	if w > MaxWindowDays {
		return fmt.Errorf("window must be at most %d days, got %d", MaxWindowDays, int(w))
	}
	return nil
}

// Bounds returns the [min, max) interval the window covers at the given
// instant. The lower bound is truncated to the hour so that every request
// landing in the same hour bucket issues an identical remote query and can
// share a cache entry.
func (w Window) Bounds(now time.Time) (time.Time, time.Time) {
	min := now.UTC().Truncate(time.Hour)
	max := min.Add(time.Duration(w) * 24 * time.Hour)
	return min, max
}
