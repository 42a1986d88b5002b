package fit

import (
	"context"
	"log/slog"
	"time"
)

// Stop reasons reported in Result
const (
	StopCancelled = "cancelled"
	StopMaxRounds = "max_rounds"
	StopConverged = "converged"
)

// RoundStats describes one completed round
type RoundStats struct {
	Round          int           `json:"round"`
	Accepted       uint64        `json:"accepted"`      // stamps accepted in this round
	TotalAccepted  uint64        `json:"totalAccepted"` // stamps accepted since start
	Loss           float64       `json:"loss"`          // total loss of the composed image
	MeanLoss       float64       `json:"meanLoss"`
	RoundTime      time.Duration `json:"roundTime"`
	Elapsed        time.Duration `json:"elapsed"`
	TicksPerSecond float64       `json:"ticksPerSecond"`
}

// Observer receives every round's statistics and composed image. The image is
// reused by the next round; copy it to keep it.
type Observer func(stats RoundStats, composed *Image)

// Result is the outcome of Run
type Result struct {
	Image       *Image        `json:"-"`
	Rounds      int           `json:"rounds"`
	InitialLoss float64       `json:"initialLoss"`
	FinalLoss   float64       `json:"finalLoss"`
	Accepted    uint64        `json:"accepted"`
	Proposed    uint64        `json:"proposed"`
	Elapsed     time.Duration `json:"elapsed"`
	StopReason  string        `json:"stopReason"`
}

// Run repeats rounds until ctx is done, cfg.MaxRounds is reached or the
// convergence tracker fires. ctx is only checked between rounds, so the round
// in flight always completes. The ensemble is finalized before Run returns and
// Result.Image holds the final composition.
func (e *Ensemble) Run(ctx context.Context, cfg Config, observe Observer) (*Result, error) {
	composed := NewImage(e.target.Width(), e.target.Height())
	e.Compose(composed)
	initialLoss := TotalLoss(e.target, composed)

	tracker := NewConvergenceTracker(cfg.Convergence)
	tracker.Update(initialLoss)

	slog.Info("Starting search",
		"threads", len(e.members),
		"iterations", cfg.Iterations,
		"width", e.target.Width(),
		"height", e.target.Height(),
		"initial_loss", initialLoss,
	)

	start := time.Now()
	rounds := 0
	reason := StopCancelled

loop:
	for {
		select {
		case <-ctx.Done():
			reason = StopCancelled
			break loop
		default:
		}

		before := e.Accepted()
		roundStart := time.Now()
		if err := e.Round(cfg.Iterations); err != nil {
			return nil, err
		}
		roundTime := time.Since(roundStart)
		rounds++

		e.Compose(composed)
		loss := TotalLoss(e.target, composed)

		stats := RoundStats{
			Round:         rounds,
			Accepted:      e.Accepted() - before,
			TotalAccepted: e.Accepted(),
			Loss:          loss,
			MeanLoss:      loss / float64(len(composed.Pix)),
			RoundTime:     roundTime,
			Elapsed:       time.Since(start),
		}
		if secs := roundTime.Seconds(); secs > 0 {
			stats.TicksPerSecond = float64(cfg.Iterations*len(e.members)) / secs
		}

		slog.Debug("Round complete",
			"round", stats.Round,
			"accepted", stats.Accepted,
			"loss", stats.Loss,
			"ticks_per_second", stats.TicksPerSecond,
			"stale_rounds", tracker.StaleCount(),
		)

		if observe != nil {
			observe(stats, composed)
		}

		if cfg.MaxRounds > 0 && rounds >= cfg.MaxRounds {
			reason = StopMaxRounds
			break
		}
		if tracker.Update(loss) {
			reason = StopConverged
			break
		}
	}

	e.Finalize()
	e.Compose(composed)
	finalLoss := TotalLoss(e.target, composed)

	result := &Result{
		Image:       composed,
		Rounds:      rounds,
		InitialLoss: initialLoss,
		FinalLoss:   finalLoss,
		Accepted:    e.Accepted(),
		Proposed:    e.Proposed(),
		Elapsed:     time.Since(start),
		StopReason:  reason,
	}

	slog.Info("Search stopped",
		"reason", reason,
		"rounds", rounds,
		"accepted", result.Accepted,
		"proposed", result.Proposed,
		"initial_loss", initialLoss,
		"final_loss", finalLoss,
		"elapsed", result.Elapsed,
	)
	return result, nil
}
