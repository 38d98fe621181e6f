package api

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/structweave/stb2ifc/core/model"
)

// JobStatus represents the current state of a conversion job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents an asynchronous conversion job.
type Job struct {
	ID          string                      `json:"id"`
	Status      JobStatus                   `json:"status"`
	Progress    int                         `json:"progress"` // 0-100
	Mode        model.ConversionMode        `json:"mode"`
	InputName   string                      `json:"input_name"`
	Statistics  *model.ConversionStatistics `json:"statistics,omitempty"`
	Warnings    []string                    `json:"warnings,omitempty"`
	Error       string                      `json:"error,omitempty"`
	OutputBytes int                         `json:"output_bytes,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	CompletedAt *time.Time                  `json:"completed_at,omitempty"`

	output []byte
}

// JobStore manages conversion jobs in memory. Each server owns its own
// store; there is no process-global state.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobStore creates an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*Job)}
}

// Create registers a new pending job.
func (s *JobStore) Create(inputName string, mode model.ConversionMode) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New().String(),
		Status:    JobStatusPending,
		Mode:      mode,
		InputName: inputName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = job
	return job
}

// Get returns a snapshot of a job by ID.
func (s *JobStore) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Output returns the produced IFC document for a completed job.
func (s *JobStore) Output(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != JobStatusCompleted {
		return nil, false
	}
	return job.output, true
}

// List returns snapshots of all jobs, newest first.
func (s *JobStore) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// SetRunning marks a job running at the given progress.
func (s *JobStore) SetRunning(id string, progress int) {
	s.update(id, func(job *Job) {
		job.Status = JobStatusRunning
		job.Progress = progress
	})
}

// Complete marks a job completed with its result and output document.
func (s *JobStore) Complete(id string, result *model.ConversionResult, output []byte) {
	s.update(id, func(job *Job) {
		now := time.Now().UTC()
		job.Status = JobStatusCompleted
		job.Progress = 100
		job.Statistics = result.Statistics
		job.Warnings = result.Warnings
		job.OutputBytes = len(output)
		job.output = output
		job.CompletedAt = &now
	})
}

// Fail marks a job failed with an error message.
func (s *JobStore) Fail(id string, errMsg string) {
	s.update(id, func(job *Job) {
		now := time.Now().UTC()
		job.Status = JobStatusFailed
		job.Error = errMsg
		job.CompletedAt = &now
	})
}

func (s *JobStore) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		fn(job)
		job.UpdatedAt = time.Now().UTC()
	}
}
