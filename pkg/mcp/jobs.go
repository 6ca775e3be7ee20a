package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current state of a batch job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a background download batch
type Job struct {
	ID           string    `json:"id"`
	InputFile    string    `json:"input_file"`
	Status       JobStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitempty"`
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	ResultsPath  string    `json:"results_path,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`

	// Internal fields
	ctx    context.Context
	cancel context.CancelFunc
}

// finished reports whether the job reached a terminal status
func (j *Job) finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// Progress is a point-in-time counter update for a job
type Progress struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
}

// JobManager manages background batch jobs
type JobManager struct {
	jobs    map[string]*Job
	mu      sync.RWMutex
	byInput map[string]string // input file -> jobID for active jobs
}

// NewJobManager creates a new job manager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:    make(map[string]*Job),
		byInput: make(map[string]string),
	}
}

// CreateJob creates a job for an input file, or returns the active one for that file.
// created is false when an existing job was returned.
func (m *JobManager) CreateJob(inputFile string) (job *Job, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.byInput[inputFile]; ok {
		if existing := m.jobs[existingID]; existing != nil && !existing.finished() {
			snapshot := *existing
			return &snapshot, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Job{
		ID:        uuid.New().String(),
		InputFile: inputFile,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.jobs[j.ID] = j
	m.byInput[inputFile] = j.ID

	snapshot := *j
	return &snapshot, true
}

// GetJob returns a copy of the job, or nil
func (m *JobManager) GetJob(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	snapshot := *j
	return &snapshot
}

// IsRunning checks if a job is active for an input file
func (m *JobManager) IsRunning(inputFile string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if jobID, ok := m.byInput[inputFile]; ok {
		j := m.jobs[jobID]
		return j != nil && !j.finished()
	}
	return false
}

// UpdateStatus moves a job to status. Terminal jobs are not changed again.
func (m *JobManager) UpdateStatus(jobID string, status JobStatus, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.finished() {
		return
	}
	j.Status = status
	if j.finished() {
		j.CompletedAt = time.Now()
		j.cancel()
		delete(m.byInput, j.InputFile)
	}
	if errorMsg != "" {
		j.ErrorMessage = errorMsg
	}
}

// UpdateProgress stores the latest counters of a job
func (m *JobManager) UpdateProgress(jobID string, p Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		j.Total = p.Total
		j.Processed = p.Processed
		j.Succeeded = p.Succeeded
		j.Failed = p.Failed
	}
}

// SetResultsPath records where a job wrote its results file
func (m *JobManager) SetResultsPath(jobID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[jobID]; ok {
		j.ResultsPath = path
	}
}

// CancelJob cancels an active job
func (m *JobManager) CancelJob(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[jobID]; ok && !j.finished() {
		j.cancel()
		j.Status = JobStatusCancelled
		j.CompletedAt = time.Now()
		delete(m.byInput, j.InputFile)
		return true
	}
	return false
}

// CancelAll cancels every active job
func (m *JobManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if !j.finished() {
			j.cancel()
			j.Status = JobStatusCancelled
			j.CompletedAt = time.Now()
		}
	}
	m.byInput = make(map[string]string)
}

// ListJobs returns copies of all jobs
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, *j)
	}
	return jobs
}

// GetContext returns the context a job runs under; it is cancelled when the job ends
func (m *JobManager) GetContext(jobID string) context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if j, ok := m.jobs[jobID]; ok {
		return j.ctx
	}
	return context.Background()
}
