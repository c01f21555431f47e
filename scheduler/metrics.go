package scheduler

import "sync"

// Metrics tracks maintenance loop counters.
type Metrics struct {
	mu                 sync.RWMutex
	passes             int64
	failedPasses       int64
	refreshRetries     int64
	proactiveRefreshes int64
	warmedWindows      int64
}

func (m *Metrics) IncrementPasses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes++
}

func (m *Metrics) IncrementFailedPasses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedPasses++
}

func (m *Metrics) IncrementRefreshRetries() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshRetries++
}

func (m *Metrics) IncrementProactiveRefreshes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proactiveRefreshes++
}

func (m *Metrics) IncrementWarmedWindows() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmedWindows++
}

// GetSnapshot returns a point-in-time copy of all counters.
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"passes":              m.passes,
		"failed_passes":       m.failedPasses,
		"refresh_retries":     m.refreshRetries,
		"proactive_refreshes": m.proactiveRefreshes,
		"warmed_windows":      m.warmedWindows,
	}
}
