package pipeline

import (
	"os"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/ajitpratap0/protspace/pkg/annotation"
	"github.com/ajitpratap0/protspace/pkg/metrics"
	"github.com/ajitpratap0/protspace/pkg/retriever"
)

// SourceReport summarises the retrieval of one source.
type SourceReport struct {
	Source    annotation.Source        `json:"source"`
	Requested int                      `json:"requested"`
	Cached    int                      `json:"cached"`
	Fetched   int                      `json:"fetched"`
	Failures  []retriever.BatchFailure `json:"-"`
	Skipped   []string                 `json:"skipped,omitempty"`
}

// Placeholders returns the number of keys left empty by failed batches.
func (s *SourceReport) Placeholders() int {
	n := 0
	for _, f := range s.Failures {
		n += len(f.Keys)
	}
	return n
}

// Report describes one job run. ResidentBytes is sampled after the output
// is written.
type Report struct {
	JobID         string                              `json:"job_id"`
	Identifiers   int                                 `json:"identifiers"`
	Records       int                                 `json:"records"`
	Columns       []string                            `json:"columns"`
	Resolution    *annotation.Resolution              `json:"-"`
	Sources       map[annotation.Source]*SourceReport `json:"sources"`
	Stages        map[string]time.Duration            `json:"stages"`
	Duration      time.Duration                       `json:"duration"`
	ResidentBytes uint64                              `json:"resident_bytes,omitempty"`
}

func newReport(jobID string) *Report {
	return &Report{
		JobID:   jobID,
		Sources: make(map[annotation.Source]*SourceReport),
		Stages:  make(map[string]time.Duration),
	}
}

func (r *Report) source(s annotation.Source) *SourceReport {
	sr, ok := r.Sources[s]
	if !ok {
		sr = &SourceReport{Source: s}
		r.Sources[s] = sr
	}
	return sr
}

// Failures returns every failed batch in source order.
func (r *Report) Failures() []retriever.BatchFailure {
	var out []retriever.BatchFailure
	for _, s := range annotation.Sources {
		if sr, ok := r.Sources[s]; ok {
			out = append(out, sr.Failures...)
		}
	}
	return out
}

// Degraded reports whether any batch failed.
func (r *Report) Degraded() bool {
	for _, sr := range r.Sources {
		if len(sr.Failures) > 0 {
			return true
		}
	}
	return false
}

// StageNames returns the recorded stages sorted by name.
func (r *Report) StageNames() []string {
	names := make([]string, 0, len(r.Stages))
	for n := range r.Stages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SampleMemory records the resident set size of the process in the report
// and in the memory gauge under component.
func (r *Report) SampleMemory(component string) {
	rss, err := residentBytes()
	if err != nil {
		return
	}
	r.ResidentBytes = rss
	metrics.MemoryResident.WithLabelValues(component).Set(float64(rss))
}

func residentBytes() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}
