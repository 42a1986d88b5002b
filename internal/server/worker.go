package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/circlez/internal/fit"
	"github.com/cwbudde/circlez/internal/imageio"
	"github.com/cwbudde/circlez/internal/store"
)

// runJob executes a job until it converges, reaches its round limit or ctx is
// cancelled. With a non-nil runStore the run is saved at the end and, if the
// job asks for it, every CheckpointInterval seconds while it runs.
func runJob(ctx context.Context, jm *JobManager, runStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	slog.Info("Starting job", "job_id", jobID, "ref", job.Config.RefPath)

	cfg, err := job.Config.FitConfig()
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("invalid config: %w", err))
		return err
	}

	img, err := imageio.Load(job.Config.RefPath)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	target := fit.NewTarget(img)
	jm.setTarget(jobID, target)

	slog.Info("Loaded reference image", "job_id", jobID, "width", target.Width(), "height", target.Height())

	ens, err := fit.NewEnsemble(target, cfg)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to create ensemble: %w", err))
		return err
	}

	initial := ens.Composite()
	initialLoss := fit.TotalLoss(target, initial)
	jm.setBest(jobID, initial)
	updateJob(jm, jobID, func(j *Job) {
		j.Width = target.Width()
		j.Height = target.Height()
		j.InitialLoss = initialLoss
		j.Loss = initialLoss
	})

	var (
		rec   *store.RunRecord
		trace *store.TraceWriter
	)
	if runStore != nil {
		rec = store.NewRunRecord(job.Config.RefPath, target.Width(), target.Height(), cfg)
		updateJob(jm, jobID, func(j *Job) { j.RunID = rec.ID })
		if trace, err = runStore.OpenTrace(rec.ID, false); err != nil {
			slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
		}
	}

	var interval time.Duration
	if job.Config.CheckpointInterval > 0 {
		interval = time.Duration(job.Config.CheckpointInterval) * time.Second
	}
	lastCheckpoint := time.Now()

	observe := func(stats fit.RoundStats, composed *fit.Image) {
		jm.setBest(jobID, composed)
		updateJob(jm, jobID, func(j *Job) {
			j.Rounds = stats.Round
			j.Accepted = stats.TotalAccepted
			j.Loss = stats.Loss
			j.TicksPerSecond = stats.TicksPerSecond
		})
		if snapshot, ok := jm.GetJob(jobID); ok {
			jm.broadcaster.Broadcast(eventFromJob(snapshot))
		}

		if trace != nil {
			if err := trace.Write(store.EntryFromStats(stats)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}

		if rec != nil && interval > 0 && time.Since(lastCheckpoint) >= interval {
			lastCheckpoint = time.Now()
			saveCheckpoint(runStore, rec, stats, initialLoss, composed)
			if trace != nil {
				if err := trace.Flush(); err != nil {
					slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
				}
			}
		}
	}

	result, err := ens.Run(ctx, cfg, observe)
	if trace != nil {
		if cerr := trace.Close(); cerr != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", cerr)
		}
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}
	jm.setBest(jobID, result.Image)

	if rec != nil {
		rec.Update(result)
		if err := runStore.SaveRun(rec, result.Image); err != nil {
			slog.Error("Failed to save run", "job_id", jobID, "run_id", rec.ID, "error", err)
		}
	}

	state := StateCompleted
	if result.StopReason == fit.StopCancelled {
		state = StateCancelled
	}

	endTime := time.Now()
	updateJob(jm, jobID, func(j *Job) {
		j.State = state
		j.Rounds = result.Rounds
		j.Accepted = result.Accepted
		j.Loss = result.FinalLoss
		j.EndTime = &endTime
	})

	slog.Info("Job finished",
		"job_id", jobID,
		"state", state,
		"stop_reason", result.StopReason,
		"rounds", result.Rounds,
		"initial_loss", result.InitialLoss,
		"final_loss", result.FinalLoss,
		"elapsed", result.Elapsed,
	)

	if snapshot, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFromJob(snapshot))
	}
	return nil
}

// saveCheckpoint persists the state of a run that is still in progress
func saveCheckpoint(runStore store.Store, rec *store.RunRecord, stats fit.RoundStats, initialLoss float64, composed *fit.Image) {
	cp := *rec
	cp.Rounds = stats.Round
	cp.Accepted = stats.TotalAccepted
	cp.InitialLoss = initialLoss
	cp.FinalLoss = stats.Loss
	cp.Timestamp = time.Now()

	if err := runStore.SaveRun(&cp, composed); err != nil {
		slog.Error("Failed to save checkpoint", "run_id", rec.ID, "error", err)
		return
	}
	slog.Info("Checkpoint saved", "run_id", rec.ID, "round", stats.Round, "loss", stats.Loss)
}

// updateJob applies a progress update. Jobs are never removed from the
// manager, so a failure is only logged and the run goes on.
func updateJob(jm *JobManager, jobID string, update func(*Job)) {
	if err := jm.UpdateJob(jobID, update); err != nil {
		slog.Warn("Failed to update job", "job_id", jobID, "error", err)
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	updateJob(jm, jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)

	if snapshot, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(eventFromJob(snapshot))
	}
}
