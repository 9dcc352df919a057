package telemetry

import (
	"strings"
	"sync"
)

type Report struct {
	ID     string
	Params []any
}

// RecordingAPI keeps every report in memory so tests can assert on what a
// component logged.
type RecordingAPI struct {
	mu       sync.Mutex
	Broken   []Report
	Warnings []Report
	Debug    []Report
	Counts   map[string]int64
}

func NewRecordingAPI() *RecordingAPI {
	return &RecordingAPI{Counts: map[string]int64{}}
}

func (r *RecordingAPI) ReportBroken(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Broken = append(r.Broken, Report{ID: id, Params: params})
}

func (r *RecordingAPI) ReportWarning(id string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, Report{ID: id, Params: params})
}

func (r *RecordingAPI) ReportDebug(msg string, params ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Debug = append(r.Debug, Report{ID: msg, Params: params})
}

func (r *RecordingAPI) ReportCount(id string, count int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Counts[id] = count
}

// WarningsFor returns the warnings whose id ends with the given suffix, which
// ignores any ScopedAPI namespace in front of it.
func (r *RecordingAPI) WarningsFor(suffix string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Report
	for _, w := range r.Warnings {
		if strings.HasSuffix(w.ID, suffix) {
			out = append(out, w)
		}
	}
	return out
}

func (r *RecordingAPI) BrokenFor(suffix string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Report
	for _, b := range r.Broken {
		if strings.HasSuffix(b.ID, suffix) {
			out = append(out, b)
		}
	}
	return out
}
