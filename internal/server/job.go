package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/circlez/internal/fit"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Done reports whether the job has reached a terminal state
func (s JobState) Done() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is the request body of POST /api/v1/jobs
type JobConfig struct {
	RefPath     string `json:"refPath"`
	Threads     int    `json:"threads,omitempty"`
	Iterations  int    `json:"iterations,omitempty"`
	Seed        int64  `json:"seed,omitempty"`
	ColorPolicy string `json:"colorPolicy,omitempty"`
	Proposer    string `json:"proposer,omitempty"`
	Seams       string `json:"seams,omitempty"`

	// MaxRounds bounds the job (0 = until cancelled or converged)
	MaxRounds int `json:"maxRounds,omitempty"`

	// Patience and Threshold enable the convergence stop when Patience > 0
	Patience  int     `json:"patience,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`

	// CheckpointInterval saves the run every N seconds (0 = only at the end)
	CheckpointInterval int `json:"checkpointInterval,omitempty"`
}

// applyDefaults fills zero-valued fields from fit.DefaultConfig
func (c *JobConfig) applyDefaults() {
	def := fit.DefaultConfig()
	if c.Threads <= 0 {
		c.Threads = def.Threads
	}
	if c.Iterations <= 0 {
		c.Iterations = def.Iterations
	}
	if c.Seed == 0 {
		c.Seed = def.Seed
	}
	if c.ColorPolicy == "" {
		c.ColorPolicy = def.ColorPolicy
	}
	if c.Proposer == "" {
		c.Proposer = def.Proposer
	}
	if c.Seams == "" {
		c.Seams = string(def.Seams)
	}
	if c.Patience > 0 && c.Threshold == 0 {
		c.Threshold = fit.DefaultConvergenceConfig().Threshold
	}
}

// FitConfig converts the request into a validated search config
func (c JobConfig) FitConfig() (fit.Config, error) {
	c.applyDefaults()

	cfg := fit.DefaultConfig()
	cfg.Threads = c.Threads
	cfg.Iterations = c.Iterations
	cfg.Seed = c.Seed
	cfg.ColorPolicy = c.ColorPolicy
	cfg.Proposer = c.Proposer
	cfg.MaxRounds = c.MaxRounds

	seams, err := fit.ParseSeamPolicy(c.Seams)
	if err != nil {
		return fit.Config{}, err
	}
	cfg.Seams = seams

	if c.Patience > 0 {
		cfg.Convergence = fit.ConvergenceConfig{
			Enabled:   true,
			Patience:  c.Patience,
			Threshold: c.Threshold,
		}
	}

	if err := cfg.Validate(); err != nil {
		return fit.Config{}, err
	}
	return cfg, nil
}

// Job represents a search job
type Job struct {
	ID             string     `json:"id"`
	State          JobState   `json:"state"`
	Config         JobConfig  `json:"config"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	Rounds         int        `json:"rounds"`
	Accepted       uint64     `json:"accepted"`
	InitialLoss    float64    `json:"initialLoss"`
	Loss           float64    `json:"loss"`
	TicksPerSecond float64    `json:"ticksPerSecond"`
	RunID          string     `json:"runId,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Elapsed is the running time of the job, up to now if it has not ended
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// jobEntry is the manager-private state behind a Job
type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	target *fit.Target
	best   *fit.Image
}

// JobManager manages the lifecycle of jobs. Jobs handed out are snapshots;
// mutate them through UpdateJob.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*jobEntry
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*jobEntry),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob registers a pending job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	e := &jobEntry{job: Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}}
	jm.jobs[e.job.ID] = e

	snapshot := e.job
	return &snapshot
}

// GetJob returns a snapshot of the job
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	e, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	snapshot := e.job
	return &snapshot, true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, e := range jm.jobs {
		snapshot := e.job
		jobs = append(jobs, &snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartTime.Before(jobs[j].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	e, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	updateFn(&e.job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	var running []*Job
	for _, job := range jm.ListJobs() {
		if job.State == StateRunning {
			running = append(running, job)
		}
	}
	return running
}

// setCancel stores the function that stops the job's worker
func (jm *JobManager) setCancel(id string, cancel context.CancelFunc) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if e, ok := jm.jobs[id]; ok {
		e.cancel = cancel
	}
}

// CancelJob asks a pending or running job to stop after its current round.
// It returns false if the job does not exist or has already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	e, ok := jm.jobs[id]
	if !ok || e.job.State.Done() {
		jm.mu.Unlock()
		return false
	}
	cancel := e.cancel
	jm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// setTarget records the decoded target of a job
func (jm *JobManager) setTarget(id string, target *fit.Target) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if e, ok := jm.jobs[id]; ok {
		e.target = target
	}
}

// setBest replaces the latest composed approximation of a job. img is copied.
func (jm *JobManager) setBest(id string, img *fit.Image) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	e, ok := jm.jobs[id]
	if !ok {
		return
	}
	if e.best == nil || !e.best.SameSize(img) {
		e.best = img.Clone()
		return
	}
	e.best.CopyFrom(img)
}

// Images returns the target and a copy of the latest approximation. best is
// nil until the first round completes.
func (jm *JobManager) Images(id string) (target *fit.Target, best *fit.Image, ok bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	e, exists := jm.jobs[id]
	if !exists {
		return nil, nil, false
	}
	if e.best != nil {
		best = e.best.Clone()
	}
	return e.target, best, true
}
