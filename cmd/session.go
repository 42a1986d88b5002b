package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cwbudde/circlez/internal/display"
	"github.com/cwbudde/circlez/internal/fit"
	"github.com/cwbudde/circlez/internal/imageio"
	"github.com/cwbudde/circlez/internal/store"
)

// session is one search over a loaded target, shared by run and resume
type session struct {
	target *fit.Target
	ens    *fit.Ensemble
	cfg    fit.Config
	rec    *store.RunRecord

	// runStore is nil when records are disabled
	runStore    *store.FSStore
	appendTrace bool

	window bool
	scale  int
}

// execute runs rounds until ctx is cancelled or the config stops the run,
// then exports the composite and saves the run record.
func (s *session) execute(ctx context.Context) (*fit.Result, error) {
	// Trace rounds continue the numbering of the run being resumed
	roundOffset := s.rec.Rounds
	acceptedOffset := s.rec.Accepted

	var trace *store.TraceWriter
	if s.runStore != nil {
		var err error
		trace, err = s.runStore.OpenTrace(s.rec.ID, s.appendTrace)
		if err != nil {
			slog.Warn("Failed to open trace, continuing without it", "run_id", s.rec.ID, "error", err)
		}
	}

	opts := display.Options{
		Title:  "circlez - " + filepath.Base(s.rec.TargetPath),
		Width:  s.target.Width(),
		Height: s.target.Height(),
		Scale:  s.scale,
	}

	var result *fit.Result
	err := display.Run(ctx, opts, s.window, func(ctx context.Context, p display.Presenter) error {
		var frame []uint32
		res, err := s.ens.Run(ctx, s.cfg, func(stats fit.RoundStats, composed *fit.Image) {
			frame = fit.Pack(composed, frame)
			p.Present(frame)

			if trace != nil {
				entry := store.EntryFromStats(stats)
				entry.Round += roundOffset
				entry.Accepted += acceptedOffset
				if err := trace.Write(entry); err != nil {
					slog.Warn("Failed to write trace entry", "round", entry.Round, "error", err)
				}
			}
		})
		result = res
		return err
	})

	if trace != nil {
		if err := trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "error", err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run search: %w", err)
	}

	if err := imageio.Save(s.rec.OutputPath, result.Image); err != nil {
		return nil, fmt.Errorf("failed to export result: %w", err)
	}
	slog.Info("Exported result", "path", s.rec.OutputPath)

	s.rec.Update(result)
	if s.runStore != nil {
		if err := s.runStore.SaveRun(s.rec, result.Image); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
		slog.Info("Saved run", "run_id", s.rec.ID, "dir", s.runStore.RunDir(s.rec.ID))
	}
	return result, nil
}

// openStore returns nil when dataDir is empty
func openStore(dataDir string) (*store.FSStore, error) {
	if dataDir == "" {
		return nil, nil
	}
	runStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}
	return runStore, nil
}
