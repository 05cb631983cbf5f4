package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/deckcheck/internal/report"
)

// JobStatus represents the state of an analysis job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusExtracting  JobStatus = "extracting"
	StatusComposing   JobStatus = "composing"
	StatusInferring   JobStatus = "inferring"
	StatusIngesting   JobStatus = "ingesting"
	StatusAggregating JobStatus = "aggregating"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Done reports whether the job reached a terminal state.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

func statusFor(p Phase) JobStatus {
	switch p {
	case PhaseExtracting:
		return StatusExtracting
	case PhaseComposing:
		return StatusComposing
	case PhaseInferring:
		return StatusInferring
	case PhaseIngesting:
		return StatusIngesting
	case PhaseAggregating:
		return StatusAggregating
	}
	return StatusQueued
}

// Job tracks the analysis of one uploaded presentation.
type Job struct {
	mu sync.Mutex

	ID       string
	Filename string

	Status JobStatus
	Phase  string

	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Internal: not serialized.
	fileData []byte
	result   *report.AnalysisResult
	errors   []string
}

// NewJob creates a queued job for data.
func NewJob(id, filename string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		Filename:    filename,
		Status:      StatusQueued,
		Phase:       "queued",
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs older than the TTL. Running jobs are kept
// regardless of age.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Done() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.UpdatedAt = time.Now()
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// Finish stores the result, releases the upload and moves the job to its
// terminal state.
func (j *Job) Finish(r *report.AnalysisResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = r
	j.fileData = nil
	if r.Status == report.StatusFailure {
		j.Status = StatusFailed
		j.errors = append(j.errors, r.Diagnostic)
	} else {
		j.Status = StatusCompleted
	}
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// Result returns the analysis result, or nil while the job is running.
func (j *Job) Result() *report.AnalysisResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string          `json:"job_id"`
	Filename    string          `json:"filename"`
	Status      JobStatus       `json:"status"`
	Phase       string          `json:"phase"`
	ContentHash string          `json:"content_hash"`
	Errors      []string        `json:"errors"`
	Result      *ResultOverview `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ResultOverview summarizes a finished job without the findings.
type ResultOverview struct {
	RunID        string         `json:"run_id"`
	Status       report.Status  `json:"status"`
	Summary      report.Summary `json:"summary"`
	QuickSummary string         `json:"quick_summary"`
	ExitCode     int            `json:"exit_code"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	snap := JobSnapshot{
		ID:          j.ID,
		Filename:    j.Filename,
		Status:      j.Status,
		Phase:       j.Phase,
		ContentHash: j.ContentHash,
		Errors:      errs,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if r := j.result; r != nil {
		snap.Result = &ResultOverview{
			RunID:        r.RunID,
			Status:       r.Status,
			Summary:      r.Summary,
			QuickSummary: report.QuickSummary(r),
			ExitCode:     r.ExitCode(),
		}
	}
	return snap
}
