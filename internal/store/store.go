// Package store persists finished and in-progress runs on disk.
package store

import "github.com/cwbudde/circlez/internal/fit"

// Store persists run records together with their approximation and trace.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveRun writes the record and the approximation for rec.ID, replacing
	// any earlier save of the same run.
	SaveRun(rec *RunRecord, approx *fit.Image) error

	// LoadRun returns the record for id, or a NotFoundError.
	LoadRun(id string) (*RunRecord, error)

	// LoadApprox returns the saved approximation for id, or a NotFoundError.
	LoadApprox(id string) (*fit.Image, error)

	// ListRuns returns metadata for every readable run, newest first.
	ListRuns() ([]RunInfo, error)

	// DeleteRun removes the run directory with all artifacts.
	DeleteRun(id string) error

	// OpenTrace opens the per-round loss trace of a run for writing.
	OpenTrace(id string, appendMode bool) (*TraceWriter, error)
}

// ErrNotFound matches any NotFoundError via errors.Is
var ErrNotFound = &NotFoundError{}

// NotFoundError is returned when a run does not exist
type NotFoundError struct {
	RunID string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return "run not found: " + e.RunID
	}
	return "run not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
