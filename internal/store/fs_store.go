package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/cwbudde/circlez/internal/fit"
	"github.com/cwbudde/circlez/internal/imageio"
)

const (
	recordFile = "run.json"
	approxFile = "approx.png"
	traceFile  = "trace.jsonl"
)

// FSStore keeps runs under <baseDir>/runs/<id>/:
//
//	run.json     record
//	approx.png   lossless composed approximation
//	trace.jsonl  per-round loss trace
//
// Files are replaced with temp file + rename so readers never see a partial
// write. No locks are held.
type FSStore struct {
	baseDir string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates baseDir if needed
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store
func (s *FSStore) BaseDir() string { return s.baseDir }

func (s *FSStore) runsDir() string { return filepath.Join(s.baseDir, "runs") }

// RunDir returns the directory holding the artifacts of a run
func (s *FSStore) RunDir(id string) string { return filepath.Join(s.runsDir(), id) }

func (s *FSStore) recordPath(id string) string { return filepath.Join(s.RunDir(id), recordFile) }

// ApproxPath returns the path of the saved approximation of a run
func (s *FSStore) ApproxPath(id string) string { return filepath.Join(s.RunDir(id), approxFile) }

// TracePath returns the path of the loss trace of a run
func (s *FSStore) TracePath(id string) string { return filepath.Join(s.RunDir(id), traceFile) }

// SaveRun writes approx.png first and run.json last, so a readable record
// always has its image.
func (s *FSStore) SaveRun(rec *RunRecord, approx *fit.Image) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.ID == "" {
		return errors.New("run ID cannot be empty")
	}

	if err := os.MkdirAll(s.RunDir(rec.ID), 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	if approx != nil {
		if err := imageio.Save(s.ApproxPath(rec.ID), approx); err != nil {
			return fmt.Errorf("failed to save approximation: %w", err)
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}
	if err := writeFileAtomic(s.recordPath(rec.ID), data); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}

	slog.Debug("Run saved", "run_id", rec.ID, "dir", s.RunDir(rec.ID))
	return nil
}

// LoadRun reads run.json for id
func (s *FSStore) LoadRun(id string) (*RunRecord, error) {
	if id == "" {
		return nil, errors.New("run ID cannot be empty")
	}

	data, err := os.ReadFile(s.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run record: %w", err)
	}

	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize run record: %w", err)
	}
	return &rec, nil
}

// LoadApprox decodes approx.png for id
func (s *FSStore) LoadApprox(id string) (*fit.Image, error) {
	path := s.ApproxPath(id)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{RunID: id}
	}
	img, err := imageio.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load approximation: %w", err)
	}
	return img, nil
}

// ListRuns returns every run with a readable record, newest first. Corrupt
// records are logged and skipped.
func (s *FSStore) ListRuns() ([]RunInfo, error) {
	entries, err := os.ReadDir(s.runsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return []RunInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	infos := []RunInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.LoadRun(entry.Name())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Warn("Skipping unreadable run", "run_id", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, rec.ToInfo())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// DeleteRun removes the run directory
func (s *FSStore) DeleteRun(id string) error {
	if id == "" {
		return errors.New("run ID cannot be empty")
	}

	dir := s.RunDir(id)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return &NotFoundError{RunID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat run directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}
	slog.Debug("Run deleted", "run_id", id)
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
