// Package execution tracks a single pipeline run: its identifier,
// accumulated errors and warnings, stage metrics, and final status. The
// record is owned by the orchestrator and snapshotted for reporting.
package execution

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the overall outcome of a pipeline run.
type Status string

const (
	StatusRunning     Status = "RUNNING"
	StatusSuccess     Status = "SUCCESS"
	StatusPartial     Status = "PARTIAL"
	StatusCritical    Status = "CRITICAL"
	StatusInterrupted Status = "INTERRUPTED"
)

// ExitCode maps a final status to the process exit code contract:
// 0 success, 1 partial, 2 critical, 3 interrupted.
func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPartial:
		return 1
	case StatusInterrupted:
		return 3
	default:
		return 2
	}
}

// ErrorEntry is one recorded stage failure.
type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	Critical  bool      `json:"critical"`
}

// WarningEntry is one recorded non-fatal condition.
type WarningEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message"`
}

// Record is the mutable state of one run. The orchestrator writes to it
// sequentially; the status endpoint may read it concurrently, so all
// access goes through the mutex.
type Record struct {
	mu sync.Mutex

	executionID string
	startedAt   time.Time
	finishedAt  time.Time
	status      Status

	errors   []ErrorEntry
	warnings []WarningEntry
	metrics  map[string]any

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewRecord starts a run record in RUNNING state. An empty id gets a
// fresh short identifier.
func NewRecord(id string) *Record {
	r := &Record{
		executionID: id,
		status:      StatusRunning,
		metrics:     make(map[string]any),
		nowFunc:     time.Now,
	}
	if r.executionID == "" {
		r.executionID = ShortID()
	}
	r.startedAt = r.nowFunc()
	return r
}

// ShortID returns an 8-character run identifier, unique enough for
// daily runs while staying readable in log lines and filenames.
func ShortID() string {
	return uuid.NewString()[:8]
}

// ExecutionID returns the run identifier.
func (r *Record) ExecutionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executionID
}

// Status returns the current run status.
func (r *Record) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AddError records a stage failure. Critical failures are the ones that
// abort the remaining stages.
func (r *Record) AddError(stage string, err error, critical bool) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, ErrorEntry{
		Timestamp: r.nowFunc(),
		Stage:     stage,
		Message:   err.Error(),
		Critical:  critical,
	})
}

// AddWarning records a non-fatal condition worth surfacing in the run
// summary.
func (r *Record) AddWarning(stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, WarningEntry{
		Timestamp: r.nowFunc(),
		Stage:     stage,
		Message:   message,
	})
}

// SetMetric stores a named measurement for the run summary.
func (r *Record) SetMetric(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[name] = value
}

// Metric returns a stored measurement and whether it was set.
func (r *Record) Metric(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.metrics[name]
	return v, ok
}

// Complete finalizes the record with the given status and stamps the
// finish time. A record finalizes exactly once; later calls are
// ignored.
func (r *Record) Complete(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finishedAt.IsZero() {
		return
	}
	r.status = status
	r.finishedAt = r.nowFunc()
}

// Duration reports elapsed run time, using now for runs still in flight.
func (r *Record) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := r.finishedAt
	if end.IsZero() {
		end = r.nowFunc()
	}
	return end.Sub(r.startedAt)
}

// Summary is an immutable snapshot of a run, shaped for JSON output.
type Summary struct {
	ExecutionID     string         `json:"execution_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	DurationSeconds float64        `json:"duration_seconds"`
	Status          Status         `json:"status"`
	Errors          []ErrorEntry   `json:"errors,omitempty"`
	Warnings        []WarningEntry `json:"warnings,omitempty"`
	Metrics         map[string]any `json:"metrics,omitempty"`
}

// Summary snapshots the record.
func (r *Record) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.finishedAt
	if end.IsZero() {
		end = r.nowFunc()
	}
	s := Summary{
		ExecutionID:     r.executionID,
		StartedAt:       r.startedAt,
		DurationSeconds: end.Sub(r.startedAt).Seconds(),
		Status:          r.status,
		Errors:          append([]ErrorEntry(nil), r.errors...),
		Warnings:        append([]WarningEntry(nil), r.warnings...),
		Metrics:         make(map[string]any, len(r.metrics)),
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		s.FinishedAt = &t
	}
	for k, v := range r.metrics {
		s.Metrics[k] = v
	}
	return s
}
