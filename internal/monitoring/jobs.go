package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sustainabilityhub/sustainabilityhub/pkg/metrics"
)

// JobSummary is the last known state of one maintenance job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration_ns"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	TotalRuns           int           `json:"total_runs"`
}

// JobTracker remembers maintenance job outcomes for the health checks.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

// NewJobTracker constructs an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobSummary), now: time.Now}
}

var defaultJobs = NewJobTracker()

// DefaultJobs returns the process-wide tracker.
func DefaultJobs() *JobTracker {
	return defaultJobs
}

// Record stores the outcome of one run and counts it in Prometheus.
func (t *JobTracker) Record(job string, err error, duration time.Duration) {
	job = strings.TrimSpace(job)
	if job == "" {
		job = "unknown"
	}
	if duration < 0 {
		duration = 0
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		t.jobs[job] = entry
	}
	entry.LastStatus = result
	entry.LastRunAt = t.now()
	entry.LastDuration = duration
	entry.TotalRuns++
	if err != nil {
		entry.LastError = err.Error()
		entry.ConsecutiveFailures++
		return
	}
	entry.LastError = ""
	entry.ConsecutiveFailures = 0
}

// Snapshot returns every job sorted by name.
func (t *JobTracker) Snapshot() []JobSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JobSummary, 0, len(t.jobs))
	for _, entry := range t.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
