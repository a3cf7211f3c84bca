package metrics

import (
	"bytes"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestTimingMetricRecord(t *testing.T) {
	m := newTimingMetric("test")
	m.Record(2 * time.Millisecond)
	m.Record(4 * time.Millisecond)

	if m.Count() != 2 {
		t.Errorf("expected count 2, got %d", m.Count())
	}
	if m.MinNs() != int64(2*time.Millisecond) || m.MaxNs() != int64(4*time.Millisecond) {
		t.Errorf("unexpected min/max %d/%d", m.MinNs(), m.MaxNs())
	}
	if m.AvgNs() != int64(3*time.Millisecond) {
		t.Errorf("expected avg 3ms, got %d", m.AvgNs())
	}

	stats := m.Stats()
	if stats.Name != "test" || stats.AvgMs != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestTimingMetricConcurrent(t *testing.T) {
	m := newTimingMetric("concurrent")
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Record(time.Duration(n) * time.Microsecond)
		}(i)
	}
	wg.Wait()

	if m.Count() != 100 {
		t.Errorf("expected 100 samples, got %d", m.Count())
	}
	if m.MinNs() != int64(time.Microsecond) || m.MaxNs() != int64(100*time.Microsecond) {
		t.Errorf("unexpected min/max %d/%d", m.MinNs(), m.MaxNs())
	}
}

func TestDisabledMetricsRecordNothing(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := newTimingMetric("off")
	Timer(m)()
	c := newCacheMetric("off")
	c.Hit()
	c.Miss()

	if m.Count() != 0 || c.Hits() != 0 || c.Misses() != 0 {
		t.Error("expected no samples while disabled")
	}
}

func TestCacheMetricHitRate(t *testing.T) {
	c := newCacheMetric("cache")
	if c.HitRate() != 0 {
		t.Errorf("expected 0 without data, got %v", c.HitRate())
	}
	c.Hit()
	c.Hit()
	c.Hit()
	c.Miss()
	if got := c.HitRate(); got != 0.75 {
		t.Errorf("expected 0.75, got %v", got)
	}
	c.Reset()
	if c.Hits() != 0 || c.Misses() != 0 {
		t.Error("expected counters cleared")
	}
}

func TestResetAllClearsGlobals(t *testing.T) {
	Timer(Reconcile)()
	RelationClassCache.Hit()
	ResetAll()
	if Reconcile.Count() != 0 || RelationClassCache.Hits() != 0 {
		t.Error("expected globals reset")
	}
	if len(AllTimingStats()) != 0 {
		t.Error("expected no stats after reset")
	}
}

func TestWriteReport(t *testing.T) {
	ResetAll()
	defer ResetAll()
	RelationObjectFetch.Record(5 * time.Millisecond)
	SupportCache.Miss()

	var buf bytes.Buffer
	if err := WriteReport(&buf); err != nil {
		t.Fatal(err)
	}
	var r Report
	if err := json.Unmarshal(buf.Bytes(), &r); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, buf.String())
	}
	if len(r.Timings) != 1 || r.Timings[0].Name != "relation_object_fetch" || r.Timings[0].MaxMs != 5 {
		t.Errorf("unexpected timings %+v", r.Timings)
	}
	if len(r.Caches) != 1 || r.Caches[0].Misses != 1 {
		t.Errorf("unexpected caches %+v", r.Caches)
	}
}
