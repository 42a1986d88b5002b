package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/cwbudde/circlez/internal/fit"
	"github.com/cwbudde/circlez/internal/imageio"
	"github.com/cwbudde/circlez/internal/store"
)

// newRunCommand binds fresh run flags to a test command
func newRunCommand(t *testing.T, dataDir, outDir string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()

	cmd, out := newTestCommand("")
	addSearchFlags(cmd, &runSearch)
	addOutputFlags(cmd, &runOutput)
	mustSet(t, cmd, "iterations", "200")
	mustSet(t, cmd, "threads", "2")
	mustSet(t, cmd, "max-rounds", "3")
	mustSet(t, cmd, "ext", "png")
	mustSet(t, cmd, "out-dir", outDir)
	mustSet(t, cmd, "data-dir", dataDir)
	return cmd, out
}

func TestSearchFlagsConfig(t *testing.T) {
	tests := []struct {
		name    string
		flags   searchFlags
		wantErr bool
	}{
		{"defaults", searchFlags{threads: 1, iterations: 10, colorPolicy: "weighted", seams: "unique"}, false},
		{"raw seams", searchFlags{threads: 1, iterations: 10, colorPolicy: "uniform", seams: "raw"}, false},
		{"bad seams", searchFlags{threads: 1, iterations: 10, colorPolicy: "weighted", seams: "fold"}, true},
		{"bad color", searchFlags{threads: 1, iterations: 10, colorPolicy: "median"}, true},
		{"bad proposer", searchFlags{threads: 1, iterations: 10, colorPolicy: "weighted", proposer: "annealing"}, true},
		{"zero threads", searchFlags{threads: 0, iterations: 10, colorPolicy: "weighted"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.flags.config()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSearchFlagsConfig_Patience(t *testing.T) {
	f := searchFlags{threads: 1, iterations: 10, colorPolicy: "weighted", patience: 4, threshold: 0.01}
	cfg, err := f.config()
	if err != nil {
		t.Fatalf("config failed: %v", err)
	}
	if !cfg.Convergence.Enabled || cfg.Convergence.Patience != 4 || cfg.Convergence.Threshold != 0.01 {
		t.Errorf("Unexpected convergence config %+v", cfg.Convergence)
	}

	f.patience = 0
	cfg, _ = f.config()
	if cfg.Convergence.Enabled {
		t.Error("Convergence should be disabled without patience")
	}
}

func TestRunCommand(t *testing.T) {
	tmpDir := t.TempDir()
	targetPath := filepath.Join(tmpDir, "gradient.png")
	createTestImage(t, targetPath)
	dataDir := filepath.Join(tmpDir, "data")
	outDir := filepath.Join(tmpDir, "out")

	cmd, out := newRunCommand(t, dataDir, outDir)
	if err := runApproximation(cmd, []string{targetPath}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	outputPath := filepath.Join(outDir, "gradient_circlez.png")
	if !strings.Contains(out.String(), "Wrote "+outputPath) {
		t.Errorf("Unexpected output %q", out.String())
	}

	exported, err := imageio.Load(outputPath)
	if err != nil {
		t.Fatalf("Failed to load exported image: %v", err)
	}
	if exported.Width != 16 || exported.Height != 16 {
		t.Errorf("Expected 16x16 export, got %dx%d", exported.Width, exported.Height)
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
	if err := rec.Validate(); err != nil {
		t.Errorf("Recorded run is invalid: %v", err)
	}
	if rec.Rounds != 3 || rec.StopReason != fit.StopMaxRounds {
		t.Errorf("Expected 3 rounds stopped by max_rounds, got %d %s", rec.Rounds, rec.StopReason)
	}
	if rec.OutputPath != outputPath {
		t.Errorf("Expected output path %s, got %s", outputPath, rec.OutputPath)
	}
	if rec.Proposed != 3*2*200 {
		t.Errorf("Expected %d proposals, got %d", 3*2*200, rec.Proposed)
	}

	// png is lossless, so the export and the saved approximation agree
	approx, err := runStore.LoadApprox(rec.ID)
	if err != nil {
		t.Fatalf("LoadApprox failed: %v", err)
	}
	if string(approx.Pix) != string(exported.Pix) {
		t.Error("Saved approximation differs from export")
	}

	trace, err := runStore.ReadTrace(rec.ID)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(trace) != 3 {
		t.Errorf("Expected 3 trace entries, got %d", len(trace))
	}
}

func TestRunCommand_NoDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	targetPath := filepath.Join(tmpDir, "gradient.png")
	createTestImage(t, targetPath)

	cmd, out := newRunCommand(t, "", filepath.Join(tmpDir, "out"))
	if err := runApproximation(cmd, []string{targetPath}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.Contains(out.String(), "Run ID") {
		t.Error("No run should be recorded without a data dir")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "data")); !os.IsNotExist(err) {
		t.Error("Data directory should not be created")
	}
}

func TestRunCommand_DefaultsWriteOnlyComposite(t *testing.T) {
	targetDir := t.TempDir()
	targetPath := filepath.Join(targetDir, "gradient.png")
	createTestImage(t, targetPath)

	workDir := t.TempDir()
	t.Chdir(workDir)

	cmd, out := newTestCommand("")
	addSearchFlags(cmd, &runSearch)
	addOutputFlags(cmd, &runOutput)
	mustSet(t, cmd, "iterations", "50")
	mustSet(t, cmd, "max-rounds", "1")
	if err := runApproximation(cmd, []string{targetPath}); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.Contains(out.String(), "Run ID") {
		t.Error("No run should be recorded by default")
	}

	var written []string
	err := filepath.WalkDir(workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(workDir, path)
			written = append(written, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk work dir: %v", err)
	}

	want := []string{imageio.DefaultOutDir + "/gradient_circlez." + imageio.DefaultExt}
	if len(written) != 1 || written[0] != want[0] {
		t.Errorf("Expected only %v to be written, got %v", want, written)
	}
}

func TestRunCommand_HelpMentionsWindowBuild(t *testing.T) {
	for _, want := range []string{"-tags window", "--window", "--data-dir"} {
		if !strings.Contains(runCmd.Long, want) {
			t.Errorf("Expected run help to mention %q", want)
		}
	}
}

func TestRunCommand_Errors(t *testing.T) {
	tmpDir := t.TempDir()
	garbage := filepath.Join(tmpDir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	t.Run("missing target", func(t *testing.T) {
		cmd, _ := newRunCommand(t, "", tmpDir)
		err := runApproximation(cmd, []string{filepath.Join(tmpDir, "missing.png")})
		var decodeErr *imageio.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("Expected DecodeError, got %v", err)
		}
	})

	t.Run("undecodable target", func(t *testing.T) {
		cmd, _ := newRunCommand(t, "", tmpDir)
		err := runApproximation(cmd, []string{garbage})
		var decodeErr *imageio.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("Expected DecodeError, got %v", err)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		cmd, _ := newRunCommand(t, "", tmpDir)
		mustSet(t, cmd, "ext", "gif")
		err := runApproximation(cmd, []string{garbage})
		if !errors.Is(err, imageio.ErrUnsupportedFormat) {
			t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		cmd, _ := newRunCommand(t, "", tmpDir)
		mustSet(t, cmd, "color", "median")
		err := runApproximation(cmd, []string{garbage})
		if !errors.Is(err, fit.ErrUnknownColorPolicy) {
			t.Errorf("Expected ErrUnknownColorPolicy, got %v", err)
		}
	})
}
