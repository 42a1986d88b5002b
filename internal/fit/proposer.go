package fit

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/cwbudde/circlez/internal/opt"
)

// Proposer produces candidate stamps for a search step
type Proposer interface {
	// Propose returns a candidate for approx. approx is read-only here.
	Propose(approx *Image, rng *rand.Rand) Stamp
}

// RandomProposer samples a uniformly random center and radius
type RandomProposer struct {
	Target    *Target
	Estimator ColorEstimator
}

// Propose samples cx in [0,w), cy in [0,h), r in [1,maxRadius]
func (p *RandomProposer) Propose(_ *Image, rng *rand.Rand) Stamp {
	cx := rng.Intn(p.Target.Width())
	cy := rng.Intn(p.Target.Height())
	r := 1 + rng.Intn(p.Target.MaxRadius())
	return buildStamp(p.Target, p.Estimator, cx, cy, r, rng)
}

func buildStamp(target *Target, est ColorEstimator, cx, cy, r int, rng *rand.Rand) Stamp {
	points := CirclePoints(cx, cy, r)
	return Stamp{
		CX:     cx,
		CY:     cy,
		R:      r,
		Points: points,
		Color:  est.Estimate(target, cx, cy, r, points, rng),
	}
}

// OptimizedProposer searches center and radius with a Mayfly optimizer,
// minimizing the loss delta of the stamp it would produce. Every proposal still
// goes through the strict acceptance rule in Searcher.Tick.
type OptimizedProposer struct {
	Target    *Target
	Estimator ColorEstimator
	Seams     SeamPolicy
	Iters     int
	PopSize   int
}

// Propose runs one small optimization seeded from rng
func (p *OptimizedProposer) Propose(approx *Image, rng *rand.Rand) Stamp {
	seed := rng.Int63()
	optimizer := opt.NewMayfly(p.Iters, p.PopSize, seed)

	// The objective owns its own generator so a concurrent optimizer can never
	// touch the member's rng.
	evalRng := rand.New(rand.NewSource(seed ^ 0x5deece66d))
	var buf []Change
	eval := func(params []float64) float64 {
		stamp := p.decode(params, evalRng)
		var delta float64
		buf, delta = Score(p.Target, approx, stamp, p.Seams, buf)
		return delta
	}

	lower := []float64{0, 0, 0}
	upper := []float64{1, 1, 1}
	best, _ := optimizer.Run(eval, lower, upper, len(lower))
	return p.decode(best, rng)
}

// decode maps normalized [0,1]^3 parameters onto center and radius
func (p *OptimizedProposer) decode(params []float64, rng *rand.Rand) Stamp {
	w, h := p.Target.Width(), p.Target.Height()
	maxR := p.Target.MaxRadius()

	cx := clampInt(int(params[0]*float64(w)), 0, w-1)
	cy := clampInt(int(params[1]*float64(h)), 0, h-1)
	r := clampInt(1+int(params[2]*float64(maxR)), 1, maxR)
	return buildStamp(p.Target, p.Estimator, cx, cy, r, rng)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ProposerKind names a Proposer implementation
type ProposerKind string

const (
	ProposerRandom ProposerKind = "random"
	ProposerMayfly ProposerKind = "mayfly"
)

// ErrUnknownProposer is returned when the name does not match a known proposer.
var ErrUnknownProposer = errors.New("unknown proposer")

// NormalizeProposer maps user input to a canonical proposer name
func NormalizeProposer(name string) ProposerKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "random", "uniform":
		return ProposerRandom
	case "mayfly", "optimized", "opt":
		return ProposerMayfly
	default:
		return ProposerKind(name)
	}
}

// NewProposer constructs the proposer named by cfg.Proposer
func NewProposer(target *Target, cfg Config) (Proposer, error) {
	est, err := NewColorEstimator(cfg.ColorPolicy)
	if err != nil {
		return nil, err
	}

	switch NormalizeProposer(cfg.Proposer) {
	case ProposerRandom:
		return &RandomProposer{Target: target, Estimator: est}, nil
	case ProposerMayfly:
		return &OptimizedProposer{
			Target:    target,
			Estimator: est,
			Seams:     cfg.Seams,
			Iters:     cfg.MayflyIters,
			PopSize:   cfg.MayflyPop,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProposer, cfg.Proposer)
	}
}
