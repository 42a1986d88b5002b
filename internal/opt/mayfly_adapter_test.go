package opt

import (
	"math"
	"testing"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	dim := 3
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = -10
		upper[i] = 10
	}

	best, cost := optimizer.Run(sphere, lower, upper, dim)

	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}

	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}

	for i, v := range best {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterPerDimensionBounds(t *testing.T) {
	// Minimum of (x-3)^2 + (y+40)^2 lies inside very different boxes per axis
	shifted := func(x []float64) float64 {
		return (x[0]-3)*(x[0]-3) + (x[1]+40)*(x[1]+40)
	}

	lower := []float64{0, -100}
	upper := []float64{5, 0}

	best, _ := NewMayfly(100, 20, 7).Run(shifted, lower, upper, 2)

	for i := range best {
		if best[i] < lower[i] || best[i] > upper[i] {
			t.Errorf("Parameter %d = %f outside [%f, %f]", i, best[i], lower[i], upper[i])
		}
	}
	if math.Abs(best[0]-3) > 0.5 {
		t.Errorf("Expected x near 3, got %f", best[0])
	}
	if math.Abs(best[1]+40) > 5 {
		t.Errorf("Expected y near -40, got %f", best[1])
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	dim := 2
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// Run twice with same seed (popSize must be >=20 for mayfly v0.1.0)
	_, cost1 := NewMayfly(50, 20, 123).Run(sphere, lower, upper, dim)
	_, cost2 := NewMayfly(50, 20, 123).Run(sphere, lower, upper, dim)

	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}
