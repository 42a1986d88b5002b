package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the Mayfly library behind Optimizer. The library only
// takes scalar bounds, so every dimension is searched in [0,1] and mapped onto
// its own [lower, upper] before the objective sees it.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization. On library failure the lower corner
// of the box is returned.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	denormalize := func(unit []float64, out []float64) []float64 {
		for i := 0; i < dim; i++ {
			u := min(max(unit[i], 0), 1)
			out[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return out
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 {
		return eval(denormalize(unit, make([]float64, dim)))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Warn("Mayfly optimization failed, using lower bounds", "error", err)
		fallback := append([]float64{}, lower[:dim]...)
		return fallback, eval(fallback)
	}

	best := denormalize(result.GlobalBest.Position, make([]float64, dim))
	return best, result.GlobalBest.Cost
}
