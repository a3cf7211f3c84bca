package metrics

import (
	"io"

	json "github.com/goccy/go-json"
)

// Report is the JSON document written by WriteReport.
type Report struct {
	Timings []TimingStats `json:"timings"`
	Caches  []CacheStats  `json:"caches"`
}

// Snapshot collects the metrics that have data.
func Snapshot() Report {
	r := Report{Timings: AllTimingStats()}
	for _, c := range AllCacheMetrics() {
		if c.Hits()+c.Misses() > 0 {
			r.Caches = append(r.Caches, c.Stats())
		}
	}
	if r.Timings == nil {
		r.Timings = []TimingStats{}
	}
	if r.Caches == nil {
		r.Caches = []CacheStats{}
	}
	return r
}

// WriteReport writes Snapshot as indented JSON.
func WriteReport(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Snapshot())
}
