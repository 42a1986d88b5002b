package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cwbudde/circlez/internal/fit"
)

// setupTestStore returns a store rooted in a fresh temp dir
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	dir := t.TempDir()
	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return s, dir
}

// createTestRecord returns a valid record for an 8x6 target
func createTestRecord() *RunRecord {
	rec := NewRunRecord("assets/test.png", 8, 6, fit.DefaultConfig())
	rec.Rounds = 12
	rec.Accepted = 340
	rec.Proposed = 12 * 4096
	rec.InitialLoss = 5000
	rec.FinalLoss = 1200
	rec.StopReason = fit.StopMaxRounds
	return rec
}

func createTestApprox() *fit.Image {
	img := fit.NewImage(8, 6)
	img.SetColorAt(3, 2, fit.Color{200, 10, 60})
	return img
}

func TestNewFSStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	s, err := NewFSStore(dir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	if s.BaseDir() != dir {
		t.Errorf("Expected base dir %s, got %s", dir, s.BaseDir())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("Base directory was not created: %v", err)
	}
}

func TestSaveRun(t *testing.T) {
	s, dir := setupTestStore(t)
	rec := createTestRecord()

	if err := s.SaveRun(rec, createTestApprox()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	for _, name := range []string{"run.json", "approx.png"} {
		path := filepath.Join(dir, "runs", rec.ID, name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("Expected %s to exist: %v", path, err)
		}
	}

	tmp := filepath.Join(dir, "runs", rec.ID, "run.json.tmp")
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save: %s", tmp)
	}
}

func TestSaveRun_InvalidInput(t *testing.T) {
	s, _ := setupTestStore(t)

	if err := s.SaveRun(nil, nil); err == nil {
		t.Error("Expected error for nil record")
	}

	rec := createTestRecord()
	rec.ID = ""
	if err := s.SaveRun(rec, nil); err == nil {
		t.Error("Expected error for empty run ID")
	}
}

func TestLoadRun(t *testing.T) {
	s, _ := setupTestStore(t)
	rec := createTestRecord()
	approx := createTestApprox()

	if err := s.SaveRun(rec, approx); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := s.LoadRun(rec.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}

	// Timestamps lose their monotonic reading through JSON
	if diff := cmp.Diff(rec, loaded, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("Loaded record mismatch (-want +got):\n%s", diff)
	}

	img, err := s.LoadApprox(rec.ID)
	if err != nil {
		t.Fatalf("LoadApprox failed: %v", err)
	}
	if !bytes.Equal(img.Pix, approx.Pix) {
		t.Error("Loaded approximation differs from the saved one")
	}
}

func TestLoadRun_NotFound(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.LoadRun("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.RunID != "missing" {
		t.Errorf("Expected NotFoundError for 'missing', got %v", err)
	}

	if _, err := s.LoadApprox("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for approximation, got %v", err)
	}
}

func TestSaveRun_Overwrite(t *testing.T) {
	s, _ := setupTestStore(t)
	rec := createTestRecord()

	if err := s.SaveRun(rec, createTestApprox()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	rec.Rounds = 99
	rec.FinalLoss = 10
	if err := s.SaveRun(rec, nil); err != nil {
		t.Fatalf("Second SaveRun failed: %v", err)
	}

	loaded, err := s.LoadRun(rec.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Rounds != 99 || loaded.FinalLoss != 10 {
		t.Errorf("Expected rounds 99 and loss 10, got %d and %v", loaded.Rounds, loaded.FinalLoss)
	}
	// A nil approximation keeps the previous image
	if _, err := s.LoadApprox(rec.ID); err != nil {
		t.Errorf("Previous approximation should survive: %v", err)
	}
}

func TestListRuns_Empty(t *testing.T) {
	s, _ := setupTestStore(t)

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected no runs, got %d", len(infos))
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	s, _ := setupTestStore(t)
	now := time.Now()

	var ids []string
	for i := 0; i < 3; i++ {
		rec := createTestRecord()
		rec.Timestamp = now.Add(time.Duration(i) * time.Hour)
		if err := s.SaveRun(rec, nil); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}

	var got []string
	for _, info := range infos {
		got = append(got, info.ID)
	}
	want := []string{ids[2], ids[1], ids[0]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListRuns order mismatch (-want +got):\n%s", diff)
	}
}

func TestListRuns_SkipsInvalidEntries(t *testing.T) {
	s, dir := setupTestStore(t)

	rec := createTestRecord()
	if err := s.SaveRun(rec, nil); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	runs := filepath.Join(dir, "runs")
	// Directory without a record
	if err := os.MkdirAll(filepath.Join(runs, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	// Corrupt record
	if err := os.MkdirAll(filepath.Join(runs, "corrupt"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runs, "corrupt", "run.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	// Stray file
	if err := os.WriteFile(filepath.Join(runs, "README"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != rec.ID {
		t.Errorf("Expected only %s, got %+v", rec.ID, infos)
	}
}

func TestDeleteRun(t *testing.T) {
	s, dir := setupTestStore(t)
	rec := createTestRecord()
	if err := s.SaveRun(rec, createTestApprox()); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	if err := s.DeleteRun(rec.ID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "runs", rec.ID)); !os.IsNotExist(err) {
		t.Error("Run directory should be removed")
	}

	if err := s.DeleteRun(rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.DeleteRun(""); err == nil {
		t.Error("Expected error for empty run ID")
	}
}

func TestConcurrentSave(t *testing.T) {
	s, _ := setupTestStore(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.SaveRun(createTestRecord(), createTestApprox())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent save failed: %v", err)
		}
	}

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != n {
		t.Errorf("Expected %d runs, got %d", n, len(infos))
	}
}
