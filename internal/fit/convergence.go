package fit

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when a run stops on its own
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `json:"enabled"`

	// Patience is the number of rounds without significant improvement before stopping
	Patience int `json:"patience,omitempty"`

	// Threshold is the minimum relative improvement required to count as progress.
	// Relative improvement = (lastSignificant - loss) / lastSignificant
	Threshold float64 `json:"threshold,omitempty"`
}

// DefaultConvergenceConfig stops after 10 rounds below 0.1% improvement
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  10,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks the composed loss per round and detects stalls
type ConvergenceTracker struct {
	config          ConvergenceConfig
	rounds          int
	bestLoss        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestLoss:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a loss value and returns true if convergence is detected
func (c *ConvergenceTracker) Update(loss float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.rounds++
	if loss < c.bestLoss {
		c.bestLoss = loss
	}

	if c.rounds == 1 {
		c.lastSignificant = loss
		return false
	}

	// A perfect approximation cannot improve any further
	if c.lastSignificant == 0 {
		c.staleCount = c.config.Patience
		return true
	}

	relativeImprovement := (c.lastSignificant - loss) / c.lastSignificant
	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = loss
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant loss improvement",
		"loss", loss,
		"last_significant", c.lastSignificant,
		"relative_improvement", relativeImprovement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_loss", c.bestLoss,
		)
		return true
	}
	return false
}

// StaleCount returns the current number of rounds without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
