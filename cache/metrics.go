package cache

import (
	"fmt"
	"strings"
	"sync"
)

// Metrics tracks cache effectiveness counters.
type Metrics struct {
	mu          sync.RWMutex
	hits        int64
	staleHits   int64
	misses      int64
	puts        int64
	evictions   int64
	expirations int64
}

func (m *Metrics) IncrementHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *Metrics) IncrementStaleHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleHits++
}

func (m *Metrics) IncrementMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *Metrics) IncrementPuts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
}

func (m *Metrics) AddEvictions(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions += n
}

func (m *Metrics) AddExpirations(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expirations += n
}

// GetSnapshot returns a point-in-time copy of all counters.
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"hits":        m.hits,
		"stale_hits":  m.staleHits,
		"misses":      m.misses,
		"puts":        m.puts,
		"evictions":   m.evictions,
		"expirations": m.expirations,
	}
}

// Stats is a point-in-time view of the cache returned by Cache.Stats.
type Stats struct {
	Total       int            `json:"total"`
	Fresh       int            `json:"fresh"`
	Stale       int            `json:"stale"`
	Capacity    int            `json:"capacity"`
	ByPriority  map[string]int `json:"by_priority"`
	Hits        int64          `json:"hits"`
	StaleHits   int64          `json:"stale_hits"`
	Misses      int64          `json:"misses"`
	Puts        int64          `json:"puts"`
	Evictions   int64          `json:"evictions"`
	Expirations int64          `json:"expirations"`
}

// String renders the summary the CLI and logs display.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "entries=%d/%d (fresh=%d stale=%d)", s.Total, s.Capacity, s.Fresh, s.Stale)
	if len(s.ByPriority) > 0 {
		b.WriteString(" priority:")
		for _, p := range []string{"high", "normal", "low"} {
			if n, ok := s.ByPriority[p]; ok {
				fmt.Fprintf(&b, " %s=%d", p, n)
			}
		}
	}
	fmt.Fprintf(&b, " | hits=%d stale_hits=%d misses=%d puts=%d evictions=%d expirations=%d",
		s.Hits, s.StaleHits, s.Misses, s.Puts, s.Evictions, s.Expirations)
	return b.String()
}
