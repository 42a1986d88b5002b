package fit

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// ColorEstimator picks the fill color for a candidate circle
type ColorEstimator interface {
	Estimate(target *Target, cx, cy, r int, points []Point, rng *rand.Rand) Color
}

// UniformColor ignores the target and draws each channel uniformly from [0,255]
type UniformColor struct{}

func (UniformColor) Estimate(_ *Target, _, _, _ int, _ []Point, rng *rand.Rand) Color {
	return Color{
		uint8(rng.Intn(256)),
		uint8(rng.Intn(256)),
		uint8(rng.Intn(256)),
	}
}

// WeightedColor blends the target color under the center with the mean target
// color along the in-bounds boundary. Larger circles lean toward the boundary
// mean; at maxRadius the center no longer contributes.
type WeightedColor struct{}

func (WeightedColor) Estimate(target *Target, cx, cy, r int, points []Point, _ *rand.Rand) Color {
	center := Black
	if target.In(cx, cy) {
		center = target.ColorAt(cx, cy)
	}

	var sum [3]float32
	valid := 0
	for _, p := range points {
		if !target.In(p.X, p.Y) {
			continue
		}
		c := target.ColorAt(p.X, p.Y)
		sum[0] += float32(c[0])
		sum[1] += float32(c[1])
		sum[2] += float32(c[2])
		valid++
	}
	if valid == 0 {
		return center
	}

	edge := Color{
		uint8(sum[0] / float32(valid)),
		uint8(sum[1] / float32(valid)),
		uint8(sum[2] / float32(valid)),
	}

	maxRadius := float32(min(target.Width(), target.Height()) / 4)
	weight := min(float32(r)/maxRadius, 1.0)

	var out Color
	for c := range out {
		out[c] = uint8((1-weight)*float32(center[c]) + weight*float32(edge[c]))
	}
	return out
}

// ColorPolicy names a ColorEstimator
type ColorPolicy string

const (
	ColorUniform  ColorPolicy = "uniform"
	ColorWeighted ColorPolicy = "weighted"
)

// ErrUnknownColorPolicy is returned when the name does not match a known policy.
var ErrUnknownColorPolicy = errors.New("unknown color policy")

// NormalizeColorPolicy maps user input to a canonical policy name
func NormalizeColorPolicy(name string) ColorPolicy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "weighted", "blend":
		return ColorWeighted
	case "uniform", "random":
		return ColorUniform
	default:
		return ColorPolicy(name)
	}
}

// NewColorEstimator constructs the estimator for a policy name
func NewColorEstimator(name string) (ColorEstimator, error) {
	switch NormalizeColorPolicy(name) {
	case ColorWeighted:
		return WeightedColor{}, nil
	case ColorUniform:
		return UniformColor{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownColorPolicy, name)
	}
}
