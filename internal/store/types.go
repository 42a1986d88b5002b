package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/circlez/internal/fit"
)

// RunRecord is the persisted summary of a run. The search state itself is not
// saved beyond the composed approximation; a resumed run seeds every member
// with that image and draws fresh random streams.
type RunRecord struct {
	ID string `json:"id"`

	// ParentID is set when the run was resumed from another run
	ParentID string `json:"parentId,omitempty"`

	TargetPath string `json:"targetPath"`
	OutputPath string `json:"outputPath,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`

	Config fit.Config `json:"config"`

	Rounds      int     `json:"rounds"`
	Accepted    uint64  `json:"accepted"`
	Proposed    uint64  `json:"proposed"`
	InitialLoss float64 `json:"initialLoss"`
	FinalLoss   float64 `json:"finalLoss"`
	StopReason  string  `json:"stopReason,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// RunInfo is the listing view of a record
type RunInfo struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parentId,omitempty"`
	TargetPath string    `json:"targetPath"`
	Threads    int       `json:"threads"`
	Rounds     int       `json:"rounds"`
	FinalLoss  float64   `json:"finalLoss"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewRunID returns a fresh random run identifier
func NewRunID() string {
	return uuid.NewString()
}

// NewRunRecord starts a record for a run over the given target
func NewRunRecord(targetPath string, width, height int, cfg fit.Config) *RunRecord {
	return &RunRecord{
		ID:         NewRunID(),
		TargetPath: targetPath,
		Width:      width,
		Height:     height,
		Config:     cfg,
		Timestamp:  time.Now(),
	}
}

// Update copies the outcome of a (possibly partial) run into the record.
// Counters add to the ones already recorded so resumed runs keep totals.
func (r *RunRecord) Update(res *fit.Result) {
	r.Rounds += res.Rounds
	r.Accepted += res.Accepted
	r.Proposed += res.Proposed
	if r.Rounds == res.Rounds {
		r.InitialLoss = res.InitialLoss
	}
	r.FinalLoss = res.FinalLoss
	r.StopReason = res.StopReason
	r.Timestamp = time.Now()
}

// ToInfo converts a record to its listing view
func (r *RunRecord) ToInfo() RunInfo {
	return RunInfo{
		ID:         r.ID,
		ParentID:   r.ParentID,
		TargetPath: r.TargetPath,
		Threads:    r.Config.Threads,
		Rounds:     r.Rounds,
		FinalLoss:  r.FinalLoss,
		Timestamp:  r.Timestamp,
	}
}

// Validate checks that a record is complete enough to be resumed
func (r *RunRecord) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a UUID"}
	}
	if strings.TrimSpace(r.TargetPath) == "" {
		return &ValidationError{Field: "TargetPath", Reason: "cannot be empty"}
	}
	if r.Width <= 0 || r.Height <= 0 {
		return &ValidationError{Field: "Width/Height", Reason: "must be positive"}
	}
	if r.Rounds < 0 {
		return &ValidationError{Field: "Rounds", Reason: "cannot be negative"}
	}
	if r.InitialLoss < 0 {
		return &ValidationError{Field: "InitialLoss", Reason: "cannot be negative"}
	}
	if r.FinalLoss < 0 {
		return &ValidationError{Field: "FinalLoss", Reason: "cannot be negative"}
	}
	if r.FinalLoss > r.InitialLoss {
		return &ValidationError{Field: "FinalLoss", Reason: "cannot exceed InitialLoss"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	cfg := r.Config
	if err := cfg.Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}
	return nil
}

// ValidationError reports an invalid record field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// Is allows errors.Is(err, &ValidationError{}) regardless of field
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// IsCompatible checks that a target of the given size can continue this run
func (r *RunRecord) IsCompatible(width, height int) error {
	if r.Width != width || r.Height != height {
		return &CompatibilityError{
			Field:    "dimensions",
			Expected: fmt.Sprintf("%dx%d", r.Width, r.Height),
			Actual:   fmt.Sprintf("%dx%d", width, height),
		}
	}
	return nil
}

// CompatibilityError is returned when a resume target does not fit the record
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
