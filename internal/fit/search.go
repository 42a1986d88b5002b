package fit

import "math/rand"

// Stamp is one candidate circle. Points is the raw rasterizer output and may
// contain out-of-bounds coordinates and seam duplicates.
type Stamp struct {
	CX, CY int
	R      int
	Points []Point
	Color  Color
}

// Changes pairs every in-bounds boundary point with the stamp color, appending
// to buf. With SeamsUnique each position appears once.
func (s Stamp) Changes(target *Target, seams SeamPolicy, buf []Change) []Change {
	points := s.Points
	if seams != SeamsRaw {
		points = DedupeSeams(points, s.CX, s.CY)
	}

	buf = buf[:0]
	for _, p := range points {
		if target.In(p.X, p.Y) {
			buf = append(buf, Change{P: p, C: s.Color})
		}
	}
	return buf
}

// Score returns the change set of a stamp and its loss delta against approx
func Score(target *Target, approx *Image, stamp Stamp, seams SeamPolicy, buf []Change) ([]Change, float64) {
	changes := stamp.Changes(target, seams, buf)
	return changes, LossDelta(target, approx, changes)
}

// Searcher runs search steps for a single approximation. It keeps scratch
// buffers and must not be shared between goroutines.
type Searcher struct {
	target   *Target
	proposer Proposer
	seams    SeamPolicy
	changes  []Change
}

// NewSearcher creates a searcher drawing candidates from proposer
func NewSearcher(target *Target, proposer Proposer, seams SeamPolicy) *Searcher {
	return &Searcher{
		target:   target,
		proposer: proposer,
		seams:    seams,
	}
}

// Tick proposes one stamp and commits it to approx only if it strictly lowers
// the loss. Rejected proposals leave approx untouched.
func (s *Searcher) Tick(approx *Image, rng *rand.Rand) bool {
	stamp := s.proposer.Propose(approx, rng)

	var delta float64
	s.changes, delta = Score(s.target, approx, stamp, s.seams, s.changes)
	if delta >= 0 {
		return false
	}

	approx.Apply(s.changes)
	return true
}
