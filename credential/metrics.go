package credential

import "sync"

// Metrics tracks manager activity for the status surfaces.
type Metrics struct {
	mu                  sync.RWMutex
	ensureCalls         int64
	refreshes           int64
	refreshFailures     int64
	validations         int64
	validationCacheHits int64
}

func (m *Metrics) IncrementEnsureCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureCalls++
}

func (m *Metrics) IncrementRefreshes() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
}

func (m *Metrics) IncrementRefreshFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshFailures++
}

func (m *Metrics) IncrementValidations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations++
}

func (m *Metrics) IncrementValidationCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validationCacheHits++
}

// GetSnapshot returns a point-in-time copy of all counters.
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"ensure_calls":          m.ensureCalls,
		"refreshes":             m.refreshes,
		"refresh_failures":      m.refreshFailures,
		"validations":           m.validations,
		"validation_cache_hits": m.validationCacheHits,
	}
}
