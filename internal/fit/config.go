package fit

import "fmt"

// Config holds the startup parameters of a search
type Config struct {
	// Threads is the ensemble size; one goroutine per member per round
	Threads int `json:"threads"`
	// Iterations is the number of search steps each member runs per round
	Iterations int `json:"iterations"`
	// Seed seeds member i with Seed+i
	Seed int64 `json:"seed"`

	ColorPolicy string     `json:"colorPolicy"`
	Proposer    string     `json:"proposer"`
	Seams       SeamPolicy `json:"seams"`

	// MayflyIters and MayflyPop size the per-proposal optimization of the
	// mayfly proposer. Ignored by the random proposer.
	MayflyIters int `json:"mayflyIters,omitempty"`
	MayflyPop   int `json:"mayflyPop,omitempty"`

	// MaxRounds stops the run after this many rounds (0 = until cancelled)
	MaxRounds int `json:"maxRounds,omitempty"`

	Convergence ConvergenceConfig `json:"convergence"`
}

// DefaultConfig mirrors the defaults of the command line
func DefaultConfig() Config {
	return Config{
		Threads:     1,
		Iterations:  4096,
		Seed:        42,
		ColorPolicy: string(ColorWeighted),
		Proposer:    string(ProposerRandom),
		Seams:       SeamsUnique,
		MayflyIters: 10,
		MayflyPop:   20,
		Convergence: DisabledConvergenceConfig(),
	}
}

// Validate checks the config and fills zero-valued optional fields
func (c *Config) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max rounds cannot be negative, got %d", c.MaxRounds)
	}
	if c.Seams == "" {
		c.Seams = SeamsUnique
	}
	if c.Seams != SeamsUnique && c.Seams != SeamsRaw {
		return fmt.Errorf("%w: %s", ErrUnknownSeamPolicy, c.Seams)
	}
	if _, err := NewColorEstimator(c.ColorPolicy); err != nil {
		return err
	}

	switch NormalizeProposer(c.Proposer) {
	case ProposerRandom:
	case ProposerMayfly:
		if c.MayflyIters <= 0 {
			c.MayflyIters = 10
		}
		// mayfly v0.1.0 rejects populations below 20
		if c.MayflyPop < 20 {
			c.MayflyPop = 20
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownProposer, c.Proposer)
	}

	if c.Convergence.Enabled {
		if c.Convergence.Patience <= 0 {
			return fmt.Errorf("convergence patience must be positive, got %d", c.Convergence.Patience)
		}
		if c.Convergence.Threshold < 0 {
			return fmt.Errorf("convergence threshold cannot be negative, got %f", c.Convergence.Threshold)
		}
	}
	return nil
}
