package server

import (
	"net/http"
	"strings"

	"github.com/cwbudde/circlez/internal/ui"
)

func toListItem(job *Job) ui.JobListItem {
	return ui.JobListItem{
		ID:          job.ID,
		State:       string(job.State),
		RefPath:     job.Config.RefPath,
		Threads:     job.Config.Threads,
		Iterations:  job.Config.Iterations,
		Rounds:      job.Rounds,
		Accepted:    job.Accepted,
		Loss:        job.Loss,
		InitialLoss: job.InitialLoss,
		StartTime:   job.StartTime,
		EndTime:     job.EndTime,
		Error:       job.Error,
	}
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	jobs := s.jobManager.ListJobs()
	items := make([]ui.JobListItem, len(jobs))
	for i, job := range jobs {
		items[i] = toListItem(job)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.JobList(items).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}

// handleJobPage handles GET /jobs/:id
func (s *Server) handleJobPage(w http.ResponseWriter, r *http.Request) {
	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/jobs/"), "/")
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.JobDetail(toListItem(job)).Render(r.Context(), w); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
