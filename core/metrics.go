package core

import "sync"

// Metrics tracks accessor outcomes. Cache effectiveness counters live
// on the cache itself; these count orchestration decisions.
type Metrics struct {
	mu                  sync.RWMutex
	remoteFetches       int64
	revalidations       int64
	degradedServes      int64
	offlineServes       int64
	backgroundRefreshes int64
	authRetries         int64
}

func (m *Metrics) IncrementRemoteFetches() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteFetches++
}

func (m *Metrics) IncrementRevalidations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revalidations++
}

func (m *Metrics) IncrementDegradedServes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degradedServes++
}

func (m *Metrics) IncrementOfflineServes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offlineServes++
}

func (m *Metrics) IncrementBackgroundRefreshes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backgroundRefreshes++
}

func (m *Metrics) IncrementAuthRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authRetries++
}

// GetSnapshot returns a point-in-time copy of all counters.
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"remote_fetches":       m.remoteFetches,
		"revalidations":        m.revalidations,
		"degraded_serves":      m.degradedServes,
		"offline_serves":       m.offlineServes,
		"background_refreshes": m.backgroundRefreshes,
		"auth_retries":         m.authRetries,
	}
}
