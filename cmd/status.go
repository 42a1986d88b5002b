package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/circlez/internal/server"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	base := strings.TrimRight(serverURL, "/")
	if len(args) == 0 {
		return listJobs(cmd.OutOrStdout(), base+"/api/v1/jobs")
	}
	jobID := args[0]
	return getJobStatus(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/jobs/%s/status", base, jobID), jobID)
}

func listJobs(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s\n", job.State)
		fmt.Fprintf(w, "  Target: %s\n", job.Config.RefPath)
		fmt.Fprintf(w, "  Threads: %d, Iterations: %d\n", job.Config.Threads, job.Config.Iterations)
		fmt.Fprintf(w, "  Rounds: %d\n", job.Rounds)
		if job.InitialLoss > 0 {
			fmt.Fprintf(w, "  Loss: %.0f -> %.0f\n", job.InitialLoss, job.Loss)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func getJobStatus(w io.Writer, url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", strings.TrimSpace(string(body)))
	}

	var status server.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if status.Job == nil {
		return fmt.Errorf("empty status for job %s", jobID)
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	cfg := status.Config
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Target: %s\n", cfg.RefPath)
	fmt.Fprintf(w, "  Threads: %d\n", cfg.Threads)
	fmt.Fprintf(w, "  Iterations: %d\n", cfg.Iterations)
	fmt.Fprintf(w, "  Color: %s, Proposer: %s, Seams: %s\n", cfg.ColorPolicy, cfg.Proposer, cfg.Seams)
	if cfg.MaxRounds > 0 {
		fmt.Fprintf(w, "  Max rounds: %d\n", cfg.MaxRounds)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Rounds: %d\n", status.Rounds)
	fmt.Fprintf(w, "  Accepted: %d\n", status.Accepted)
	if status.InitialLoss > 0 {
		fmt.Fprintf(w, "  Initial Loss: %.0f\n", status.InitialLoss)
		fmt.Fprintf(w, "  Loss: %.0f\n", status.Loss)
		fmt.Fprintf(w, "  Improvement: %.0f (%.1f%%)\n", status.InitialLoss-status.Loss, status.Improvement*100)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))

	if status.TicksPerSecond > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f steps/sec\n", status.TicksPerSecond)
	}
	if status.RunID != "" {
		fmt.Fprintf(w, "  Run ID: %s\n", status.RunID)
	}
	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}
	return nil
}
