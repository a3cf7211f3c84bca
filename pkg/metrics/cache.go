package metrics

import "sync/atomic"

// CacheMetric counts lookups that were served from a cache versus those
// that had to fetch.
type CacheMetric struct {
	name   string
	hits   int64
	misses int64
}

func newCacheMetric(name string) *CacheMetric {
	return &CacheMetric{name: name}
}

// Name returns the metric name.
func (m *CacheMetric) Name() string { return m.name }

// Hit records a lookup served from the cache.
func (m *CacheMetric) Hit() {
	if enabled.Load() {
		atomic.AddInt64(&m.hits, 1)
	}
}

// Miss records a lookup that required a fetch.
func (m *CacheMetric) Miss() {
	if enabled.Load() {
		atomic.AddInt64(&m.misses, 1)
	}
}

// Hits returns the number of recorded hits.
func (m *CacheMetric) Hits() int64 { return atomic.LoadInt64(&m.hits) }

// Misses returns the number of recorded misses.
func (m *CacheMetric) Misses() int64 { return atomic.LoadInt64(&m.misses) }

// HitRate returns hits / (hits + misses), or 0 without data.
func (m *CacheMetric) HitRate() float64 {
	h, ms := m.Hits(), m.Misses()
	if h+ms == 0 {
		return 0
	}
	return float64(h) / float64(h+ms)
}

// Reset clears the counters.
func (m *CacheMetric) Reset() {
	atomic.StoreInt64(&m.hits, 0)
	atomic.StoreInt64(&m.misses, 0)
}

// CacheStats is a snapshot of a cache metric.
type CacheStats struct {
	Name    string  `json:"name"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns a snapshot of the counters.
func (m *CacheMetric) Stats() CacheStats {
	return CacheStats{Name: m.name, Hits: m.Hits(), Misses: m.Misses(), HitRate: m.HitRate()}
}

// Global cache metrics.
var (
	RelationClassCache  = newCacheMetric("relation_class_cache")
	RelationObjectCache = newCacheMetric("relation_object_cache")
	SupportCache        = newCacheMetric("support_cache")
)

// AllCacheMetrics returns all registered cache metrics.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{RelationClassCache, RelationObjectCache, SupportCache}
}
