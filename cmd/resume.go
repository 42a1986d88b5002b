package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/circlez/internal/fit"
	"github.com/cwbudde/circlez/internal/imageio"
	"github.com/cwbudde/circlez/internal/store"
)

var (
	resumeSearch  searchFlags
	resumeOutput  outputFlags
	resumeInPlace bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue a recorded run",
	Long: `Reloads a run recorded with run --data-dir, seeds every approximation with
its saved result and keeps searching. --data-dir is required and must name the
directory the run was recorded in. Search flags override the recorded
configuration only when given. By default the continuation is recorded as a new run that points back
at its parent; --in-place extends the original record and trace instead.`,
	Args: cobra.ExactArgs(1),
	RunE: resumeRun,
}

func init() {
	addSearchFlags(resumeCmd, &resumeSearch)
	addOutputFlags(resumeCmd, &resumeOutput)
	resumeCmd.Flags().BoolVar(&resumeInPlace, "in-place", false, "Extend the original run instead of recording a new one")
	rootCmd.AddCommand(resumeCmd)
}

func resumeRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	if resumeOutput.dataDir == "" {
		return errors.New("resume needs the --data-dir the run was recorded in")
	}

	runStore, err := openStore(resumeOutput.dataDir)
	if err != nil {
		return err
	}

	parent, err := runStore.LoadRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	if err := parent.Validate(); err != nil {
		return fmt.Errorf("run %s cannot be resumed: %w", runID, err)
	}

	approx, err := runStore.LoadApprox(runID)
	if err != nil {
		return fmt.Errorf("failed to load approximation of run %s: %w", runID, err)
	}

	img, err := imageio.Load(parent.TargetPath)
	if err != nil {
		return fmt.Errorf("failed to load target: %w", err)
	}
	target := fit.NewTarget(img)
	if err := parent.IsCompatible(target.Width(), target.Height()); err != nil {
		return fmt.Errorf("target changed since run %s: %w", runID, err)
	}

	cfg, err := resumeConfig(parent, &resumeSearch, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	ens, err := fit.NewEnsembleFrom(target, approx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create ensemble: %w", err)
	}

	rec := continueRecord(parent, cfg, resumeInPlace)
	if rec.OutputPath == "" || cmd.Flags().Changed("out-dir") || cmd.Flags().Changed("ext") {
		if !imageio.SupportedExt(resumeOutput.ext) {
			return fmt.Errorf("%w: %s", imageio.ErrUnsupportedFormat, resumeOutput.ext)
		}
		rec.OutputPath = imageio.OutputPath(resumeOutput.outDir, parent.TargetPath, resumeOutput.ext)
	}

	slog.Info("Resuming run",
		"run_id", parent.ID,
		"new_run_id", rec.ID,
		"rounds", parent.Rounds,
		"loss", parent.FinalLoss,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{
		target:      target,
		ens:         ens,
		cfg:         cfg,
		rec:         rec,
		runStore:    runStore,
		appendTrace: resumeInPlace,
		window:      resumeOutput.window,
		scale:       resumeOutput.scale,
	}
	result, err := s.execute(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (loss: %.0f -> %.0f, %d rounds total, %s)\n",
		rec.OutputPath, parent.FinalLoss, result.FinalLoss, rec.Rounds, result.StopReason)
	fmt.Fprintf(cmd.OutOrStdout(), "Run ID: %s\n", rec.ID)
	return nil
}

// resumeConfig starts from the recorded config and applies the flags that
// were set explicitly. Without an explicit seed the generators are shifted by
// the recorded round count so the continuation draws fresh proposals.
func resumeConfig(parent *store.RunRecord, f *searchFlags, changed func(name string) bool) (fit.Config, error) {
	cfg := parent.Config
	if changed("threads") {
		cfg.Threads = f.threads
	}
	if changed("iterations") {
		cfg.Iterations = f.iterations
	}
	if changed("seed") {
		cfg.Seed = f.seed
	} else {
		cfg.Seed += int64(parent.Rounds)
	}
	if changed("color") {
		cfg.ColorPolicy = f.colorPolicy
	}
	if changed("proposer") {
		cfg.Proposer = f.proposer
	}
	if changed("seams") {
		seams, err := fit.ParseSeamPolicy(f.seams)
		if err != nil {
			return fit.Config{}, fmt.Errorf("invalid configuration: %w", err)
		}
		cfg.Seams = seams
	}
	if changed("max-rounds") {
		cfg.MaxRounds = f.maxRounds
	}
	if changed("patience") {
		cfg.Convergence.Enabled = f.patience > 0
		cfg.Convergence.Patience = f.patience
		cfg.Convergence.Threshold = f.threshold
	} else if changed("threshold") && cfg.Convergence.Enabled {
		cfg.Convergence.Threshold = f.threshold
	}

	if err := cfg.Validate(); err != nil {
		return fit.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// continueRecord returns the record the continuation is saved under. Totals
// carry over so the record describes the search from the blank canvas.
func continueRecord(parent *store.RunRecord, cfg fit.Config, inPlace bool) *store.RunRecord {
	if inPlace {
		parent.Config = cfg
		return parent
	}

	child := store.NewRunRecord(parent.TargetPath, parent.Width, parent.Height, cfg)
	child.ParentID = parent.ID
	child.OutputPath = parent.OutputPath
	child.Rounds = parent.Rounds
	child.Accepted = parent.Accepted
	child.Proposed = parent.Proposed
	child.InitialLoss = parent.InitialLoss
	child.FinalLoss = parent.FinalLoss
	return child
}
