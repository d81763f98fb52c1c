package metrics

import "sync/atomic"

// CacheMetric counts hits and misses for a memoization layer.
type CacheMetric struct {
	name   string
	hits   atomic.Int64
	misses atomic.Int64
}

func newCacheMetric(name string) *CacheMetric {
	return &CacheMetric{name: name}
}

// Hit records a cache hit.
func (m *CacheMetric) Hit() {
	if Enabled() {
		m.hits.Add(1)
	}
}

// Miss records a cache miss.
func (m *CacheMetric) Miss() {
	if Enabled() {
		m.misses.Add(1)
	}
}

// Stats returns a snapshot of the metric.
func (m *CacheMetric) Stats() CacheStats {
	hits := m.hits.Load()
	misses := m.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{Name: m.name, Hits: hits, Misses: misses, HitRate: rate}
}

// Reset clears the counters.
func (m *CacheMetric) Reset() {
	m.hits.Store(0)
	m.misses.Store(0)
}

// CacheStats is a snapshot of a CacheMetric.
type CacheStats struct {
	Name    string  `json:"name"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Cache metrics for the parity engine.
var (
	NodeCache   = newCacheMetric("node_cache")
	EdgeCache   = newCacheMetric("edge_cache")
	ActionCache = newCacheMetric("action_cache")
)

// AllCacheMetrics returns all registered cache metrics.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{NodeCache, EdgeCache, ActionCache}
}

// AllCacheStats returns stats for every cache metric.
func AllCacheStats() []CacheStats {
	all := AllCacheMetrics()
	stats := make([]CacheStats, 0, len(all))
	for _, m := range all {
		stats = append(stats, m.Stats())
	}
	return stats
}
