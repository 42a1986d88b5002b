package main

import (
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

// searchFlags are the search parameters shared by run and resume
type searchFlags struct {
	threads     int
	iterations  int
	seed        int64
	colorPolicy string
	proposer    string
	seams       string
	maxRounds   int
	patience    int
	threshold   float64
}

// outputFlags control where results go
type outputFlags struct {
	outDir  string
	ext     string
	dataDir string
	window  bool
	scale   int
}

var (
	runSearch searchFlags
	runOutput outputFlags
)

var runCmd = &cobra.Command{
	Use:   "run <target>",
	Short: "Approximate an image",
	Long: `Loads the target image and searches for circle stamps until interrupted
(Ctrl+C), the round limit is reached or the loss stops improving. The best
composite is written to <out-dir>/<stem>_circlez.<ext>; nothing else is
written unless --data-dir is given, in which case the run is recorded under
<data-dir>/runs/<id> so it can be resumed.

Live progress needs a binary built with -tags window and the --window flag.
Default builds run headless and show nothing while searching.`,
	Args: cobra.ExactArgs(1),
	RunE: runApproximation,
}

func init() {
	addSearchFlags(runCmd, &runSearch)
	addOutputFlags(runCmd, &runOutput)
	rootCmd.AddCommand(runCmd)
}

func addSearchFlags(cmd *cobra.Command, f *searchFlags) {
	def := fit.DefaultConfig()
	cmd.Flags().IntVar(&f.threads, "threads", def.Threads, "Number of independent approximations")
	cmd.Flags().IntVar(&f.iterations, "iterations", def.Iterations, "Search steps per approximation per round")
	cmd.Flags().Int64Var(&f.seed, "seed", def.Seed, "Random seed (approximation i uses seed+i)")
	cmd.Flags().StringVar(&f.colorPolicy, "color", def.ColorPolicy, "Stamp color policy: weighted, uniform")
	cmd.Flags().StringVar(&f.proposer, "proposer", def.Proposer, "Candidate proposer: random, mayfly")
	cmd.Flags().StringVar(&f.seams, "seams", string(def.Seams), "Seam handling: unique, raw")
	cmd.Flags().IntVar(&f.maxRounds, "max-rounds", 0, "Stop after N rounds (0 = until interrupted)")
	cmd.Flags().IntVar(&f.patience, "patience", 0, "Stop after N rounds without improvement (0 = disabled)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", fit.DefaultConvergenceConfig().Threshold, "Relative improvement that resets patience")
}

func addOutputFlags(cmd *cobra.Command, f *outputFlags) {
	cmd.Flags().StringVar(&f.outDir, "out-dir", imageio.DefaultOutDir, "Output directory")
	cmd.Flags().StringVar(&f.ext, "ext", imageio.DefaultExt, "Output format: jpg, png, bmp, tiff")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "Record the run under this directory so it can be resumed (empty = do not record)")
	cmd.Flags().BoolVar(&f.window, "window", false, "Show progress in a window (requires -tags window)")
	cmd.Flags().IntVar(&f.scale, "scale", 1, "Window scale factor")
}

// config converts the flags to a validated search config
func (f *searchFlags) config() (fit.Config, error) {
	seams, err := fit.ParseSeamPolicy(f.seams)
	if err != nil {
		return fit.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := fit.DefaultConfig()
	cfg.Threads = f.threads
	cfg.Iterations = f.iterations
	cfg.Seed = f.seed
	cfg.ColorPolicy = f.colorPolicy
	cfg.Proposer = f.proposer
	cfg.Seams = seams
	cfg.MaxRounds = f.maxRounds
	if f.patience > 0 {
		cfg.Convergence = fit.ConvergenceConfig{
			Enabled:   true,
			Patience:  f.patience,
			Threshold: f.threshold,
		}
	}

	if err := cfg.Validate(); err != nil {
		return fit.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runApproximation(cmd *cobra.Command, args []string) error {
	targetPath := args[0]

	cfg, err := runSearch.config()
	if err != nil {
		return err
	}
	if !imageio.SupportedExt(runOutput.ext) {
		return fmt.Errorf("%w: %s", imageio.ErrUnsupportedFormat, runOutput.ext)
	}

	img, err := imageio.Load(targetPath)
	if err != nil {
		return fmt.Errorf("failed to load target: %w", err)
	}
	target := fit.NewTarget(img)
	slog.Info("Loaded target", "path", targetPath, "width", target.Width(), "height", target.Height())

	ens, err := fit.NewEnsemble(target, cfg)
	if err != nil {
		return fmt.Errorf("failed to create ensemble: %w", err)
	}

	runStore, err := openStore(runOutput.dataDir)
	if err != nil {
		return err
	}

	rec := store.NewRunRecord(targetPath, target.Width(), target.Height(), cfg)
	rec.OutputPath = imageio.OutputPath(runOutput.outDir, targetPath, runOutput.ext)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := &session{
		target:   target,
		ens:      ens,
		cfg:      cfg,
		rec:      rec,
		runStore: runStore,
		window:   runOutput.window,
		scale:    runOutput.scale,
	}
	result, err := s.execute(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (loss: %.0f -> %.0f, %d rounds, %s)\n",
		rec.OutputPath, result.InitialLoss, result.FinalLoss, result.Rounds, result.StopReason)
	if runStore != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Run ID: %s\n", rec.ID)
	}
	return nil
}
