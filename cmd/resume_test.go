package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/cwbudde/circlez/internal/fit"
	"github.com/cwbudde/circlez/internal/imageio"
	"github.com/cwbudde/circlez/internal/store"
)

func newResumeCommand(t *testing.T, dataDir string, inPlace bool) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	cmd, out := newTestCommand("")
	addSearchFlags(cmd, &resumeSearch)
	addOutputFlags(cmd, &resumeOutput)
	mustSet(t, cmd, "data-dir", dataDir)

	orig := resumeInPlace
	resumeInPlace = inPlace
	t.Cleanup(func() { resumeInPlace = orig })
	return cmd, out
}

// recordRun runs three rounds over a fresh target and returns the record
func recordRun(t *testing.T, tmpDir string) (*store.FSStore, *store.RunRecord) {
	t.Helper()

	targetPath := filepath.Join(tmpDir, "gradient.png")
	createTestImage(t, targetPath)
	dataDir := filepath.Join(tmpDir, "data")

	cmd, _ := newRunCommand(t, dataDir, filepath.Join(tmpDir, "out"))
	if err := runApproximation(cmd, []string{targetPath}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	runStore, _ := store.NewFSStore(dataDir)
	infos, err := runStore.ListRuns()
	if err != nil || len(infos) != 1 {
		t.Fatalf("Expected one recorded run, got %d (%v)", len(infos), err)
	}
	rec, err := runStore.LoadRun(infos[0].ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	return runStore, rec
}

func TestResumeCommand_NewRun(t *testing.T) {
	tmpDir := t.TempDir()
	runStore, parent := recordRun(t, tmpDir)

	cmd, _ := newResumeCommand(t, runStore.BaseDir(), false)
	mustSet(t, cmd, "max-rounds", "2")
	if err := resumeRun(cmd, []string{parent.ID}); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil || len(infos) != 2 {
		t.Fatalf("Expected two recorded runs, got %d (%v)", len(infos), err)
	}

	child, err := runStore.LoadRun(infos[0].ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if child.ParentID != parent.ID {
		t.Errorf("Expected parent %s, got %s", parent.ID, child.ParentID)
	}
	if child.Rounds != parent.Rounds+2 {
		t.Errorf("Expected %d total rounds, got %d", parent.Rounds+2, child.Rounds)
	}
	if child.InitialLoss != parent.InitialLoss {
		t.Errorf("Expected initial loss %f carried over, got %f", parent.InitialLoss, child.InitialLoss)
	}
	if child.FinalLoss > parent.FinalLoss {
		t.Errorf("Resumed loss %f should not exceed parent loss %f", child.FinalLoss, parent.FinalLoss)
	}
	if child.OutputPath != parent.OutputPath {
		t.Errorf("Expected output %s, got %s", parent.OutputPath, child.OutputPath)
	}
	if err := child.Validate(); err != nil {
		t.Errorf("Resumed record is invalid: %v", err)
	}

	// Parent stays untouched
	reloaded, _ := runStore.LoadRun(parent.ID)
	if reloaded.Rounds != parent.Rounds {
		t.Errorf("Parent record changed: %d rounds", reloaded.Rounds)
	}

	trace, err := runStore.ReadTrace(child.ID)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(trace) != 2 || trace[0].Round != parent.Rounds+1 || trace[1].Round != parent.Rounds+2 {
		t.Errorf("Unexpected continued trace %+v", trace)
	}
}

func TestResumeCommand_InPlace(t *testing.T) {
	tmpDir := t.TempDir()
	runStore, parent := recordRun(t, tmpDir)

	cmd, _ := newResumeCommand(t, runStore.BaseDir(), true)
	mustSet(t, cmd, "max-rounds", "1")
	if err := resumeRun(cmd, []string{parent.ID}); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	infos, _ := runStore.ListRuns()
	if len(infos) != 1 {
		t.Fatalf("Expected the run to be extended in place, got %d runs", len(infos))
	}

	rec, _ := runStore.LoadRun(parent.ID)
	if rec.Rounds != parent.Rounds+1 {
		t.Errorf("Expected %d rounds, got %d", parent.Rounds+1, rec.Rounds)
	}

	trace, err := runStore.ReadTrace(parent.ID)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(trace) != parent.Rounds+1 {
		t.Fatalf("Expected %d trace entries, got %d", parent.Rounds+1, len(trace))
	}
	for i, entry := range trace {
		if entry.Round != i+1 {
			t.Errorf("Entry %d: expected round %d, got %d", i, i+1, entry.Round)
		}
	}
}

func TestResumeCommand_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	runStore, parent := recordRun(t, tmpDir)

	t.Run("unknown run", func(t *testing.T) {
		cmd, _ := newResumeCommand(t, runStore.BaseDir(), false)
		err := resumeRun(cmd, []string{"00000000-0000-0000-0000-000000000000"})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("no data dir", func(t *testing.T) {
		cmd, _ := newResumeCommand(t, "", false)
		if err := resumeRun(cmd, []string{parent.ID}); err == nil {
			t.Error("Expected error without data dir")
		}
	})

	t.Run("target resized", func(t *testing.T) {
		img := fit.NewImage(8, 8)
		if err := imageio.Save(parent.TargetPath, img); err != nil {
			t.Fatalf("Failed to overwrite target: %v", err)
		}

		cmd, _ := newResumeCommand(t, runStore.BaseDir(), false)
		err := resumeRun(cmd, []string{parent.ID})
		var compatErr *store.CompatibilityError
		if !errors.As(err, &compatErr) {
			t.Errorf("Expected CompatibilityError, got %v", err)
		}
	})
}

func TestResumeConfig(t *testing.T) {
	parent := &store.RunRecord{Rounds: 7, Config: fit.DefaultConfig()}
	parent.Config.MaxRounds = 5

	flags := searchFlags{threads: 4, iterations: 99, seed: 1, seams: "raw", maxRounds: 0, patience: 3, threshold: 0.02}

	t.Run("nothing changed", func(t *testing.T) {
		cfg, err := resumeConfig(parent, &flags, func(string) bool { return false })
		if err != nil {
			t.Fatalf("resumeConfig failed: %v", err)
		}
		want := parent.Config
		want.Seed += 7
		if cfg != want {
			t.Errorf("Expected %+v, got %+v", want, cfg)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		changed := map[string]bool{"threads": true, "seed": true, "seams": true, "max-rounds": true, "patience": true}
		cfg, err := resumeConfig(parent, &flags, func(name string) bool { return changed[name] })
		if err != nil {
			t.Fatalf("resumeConfig failed: %v", err)
		}
		if cfg.Threads != 4 || cfg.Seed != 1 || cfg.Seams != fit.SeamsRaw || cfg.MaxRounds != 0 {
			t.Errorf("Overrides not applied: %+v", cfg)
		}
		if cfg.Iterations != parent.Config.Iterations {
			t.Errorf("Iterations should be kept, got %d", cfg.Iterations)
		}
		if !cfg.Convergence.Enabled || cfg.Convergence.Patience != 3 {
			t.Errorf("Convergence override not applied: %+v", cfg.Convergence)
		}
	})

	t.Run("invalid override", func(t *testing.T) {
		bad := flags
		bad.threads = 0
		_, err := resumeConfig(parent, &bad, func(name string) bool { return name == "threads" })
		if err == nil {
			t.Error("Expected validation error")
		}
	})
}

func TestContinueRecord(t *testing.T) {
	parent := store.NewRunRecord("t.png", 4, 4, fit.DefaultConfig())
	parent.Rounds, parent.Accepted, parent.Proposed = 3, 10, 300
	parent.InitialLoss, parent.FinalLoss = 100, 40
	parent.OutputPath = "out/t_circlez.jpg"

	cfg := fit.DefaultConfig()
	cfg.Threads = 3

	child := continueRecord(parent, cfg, false)
	if child.ID == parent.ID || child.ParentID != parent.ID {
		t.Errorf("Expected new run pointing at parent, got id=%s parent=%s", child.ID, child.ParentID)
	}
	if child.Rounds != 3 || child.Accepted != 10 || child.Proposed != 300 || child.InitialLoss != 100 || child.FinalLoss != 40 {
		t.Errorf("Totals not carried over: %+v", child)
	}
	if child.Config.Threads != 3 || child.OutputPath != parent.OutputPath {
		t.Errorf("Unexpected child %+v", child)
	}

	same := continueRecord(parent, cfg, true)
	if same != parent || same.Config.Threads != 3 {
		t.Error("In-place continuation should reuse the parent record")
	}
}
