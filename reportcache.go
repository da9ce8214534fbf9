package reportcard

import "sync"

// ReportCache remembers the last report derived for each key so callers can
// skip downstream work (store writes, re-renders) when a new snapshot of the
// report text parses to the same model.
//
// The cache never short-circuits parsing: every call re-derives the report
// and compares it with the previous one.
type ReportCache struct {
	mu      sync.Mutex
	reports map[string]Report
}

// NewReportCache creates an empty cache
func NewReportCache() *ReportCache {
	return &ReportCache{
		reports: make(map[string]Report),
	}
}

// Derive parses raw and reports whether the result differs from the report
// previously derived for key. When it does not, the previous value is
// returned so callers keep a stable reference.
func (rc *ReportCache) Derive(key, raw string) (Report, bool) {
	report := Derive(raw)
	return rc.Put(key, report)
}

// Put records report for key and reports whether it changed.
func (rc *ReportCache) Put(key string, report Report) (Report, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if prev, ok := rc.reports[key]; ok && prev.Equal(report) {
		VerboseLog("Report %s unchanged, keeping previous model", key)
		return prev, false
	}

	rc.reports[key] = report
	VerboseLog("Report %s derived: %d questions, %s/%s", key,
		len(report.Questions), FormatPoints(report.Totals.Obtained), FormatPoints(report.Totals.Possible))
	return report, true
}

// Get returns the last report derived for key
func (rc *ReportCache) Get(key string) (Report, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	report, ok := rc.reports[key]
	return report, ok
}

// Forget drops the cached report for key
func (rc *ReportCache) Forget(key string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	delete(rc.reports, key)
}

// Len returns the number of cached reports
func (rc *ReportCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.reports)
}
