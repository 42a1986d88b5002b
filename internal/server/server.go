package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/circlez/internal/imageio"
	"github.com/cwbudde/circlez/internal/store"
)

const jobsPrefix = "/api/v1/jobs/"

// Server exposes search jobs over HTTP
type Server struct {
	jobManager *JobManager
	runStore   store.Store
	addr       string
	server     *http.Server

	// jobsCtx is the parent of every job context; Shutdown cancels it
	jobsCtx    context.Context
	cancelJobs context.CancelFunc
	workers    sync.WaitGroup
}

// NewServer creates a server. runStore may be nil, in which case finished
// jobs are kept in memory only.
func NewServer(addr string, runStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		runStore:   runStore,
		addr:       addr,
		jobsCtx:    ctx,
		cancelJobs: cancel,
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/jobs/", s.handleJobPage)

	// API
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc(jobsPrefix, s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown cancels running jobs, waits for their workers to save their
// results and then stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancelJobs()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Workers did not stop before shutdown deadline")
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// startJob runs the job's worker in the background
func (s *Server) startJob(job *Job) {
	ctx, cancel := context.WithCancel(s.jobsCtx)
	s.jobManager.setCancel(job.ID, cancel)

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer cancel()
		if err := runJob(ctx, s.jobManager, s.runStore, job.ID); err != nil {
			slog.Debug("Job worker returned error", "job_id", job.ID, "error", err)
		}
	}()
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID routes /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	jobID, action := splitJobPath(r.URL.Path, jobsPrefix)
	if jobID == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	switch action {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "cancel":
		s.handleCancelJob(w, r, jobID)
	case "best.png":
		s.handleGetBestImage(w, r, jobID)
	case "diff.png":
		s.handleGetDiffImage(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "ws":
		s.jobSocket(jobID).ServeHTTP(w, r)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	job, err := s.createJob(config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// createJob validates config, registers the job and starts its worker
func (s *Server) createJob(config JobConfig) (*Job, error) {
	if config.RefPath == "" {
		return nil, errors.New("refPath is required")
	}
	config.applyDefaults()
	if _, err := config.FitConfig(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	job := s.jobManager.CreateJob(config)
	s.startJob(job)
	return job, nil
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// JobStatus is the response of GET /api/v1/jobs/:id/status
type JobStatus struct {
	*Job
	Elapsed     float64 `json:"elapsed"`
	Improvement float64 `json:"improvement"`
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	status := JobStatus{Job: job, Elapsed: job.Elapsed().Seconds()}
	if job.InitialLoss > 0 {
		status.Improvement = (job.InitialLoss - job.Loss) / job.InitialLoss
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, exists := s.jobManager.GetJob(jobID); !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.CancelJob(jobID) {
		http.Error(w, "Job already finished", http.StatusConflict)
		return
	}

	slog.Info("Job cancellation requested", "job_id", jobID)
	job, _ := s.jobManager.GetJob(jobID)
	writeJSON(w, http.StatusAccepted, job)
}

// handleGetBestImage handles GET /api/v1/jobs/:id/best.png
func (s *Server) handleGetBestImage(w http.ResponseWriter, r *http.Request, jobID string) {
	_, best, exists := s.jobManager.Images(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if best == nil {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}
	writePNG(w, best.ToNRGBA())
}

// handleGetDiffImage handles GET /api/v1/jobs/:id/diff.png
func (s *Server) handleGetDiffImage(w http.ResponseWriter, r *http.Request, jobID string) {
	target, best, exists := s.jobManager.Images(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if target == nil || best == nil {
		http.Error(w, "No results yet", http.StatusNotFound)
		return
	}
	writePNG(w, imageio.DiffImage(target, best))
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
