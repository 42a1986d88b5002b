package fit

import (
	"errors"
	"math/rand"
	"runtime"
	"sync"
)

// ErrFinalized is returned by Round once the ensemble has been finalized.
var ErrFinalized = errors.New("ensemble finalized")

// MemberState tracks the lifecycle of one approximation
type MemberState int

const (
	StateInitialized MemberState = iota // no stamp accepted yet
	StateImproving                      // at least one stamp accepted
	StateFinal                          // search stopped, buffer frozen
)

func (s MemberState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateImproving:
		return "improving"
	case StateFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Member is one independently searching approximation. Its buffer, generator
// and searcher are only touched by the goroutine running its round.
type Member struct {
	ID       int
	img      *Image
	rng      *rand.Rand
	searcher *Searcher
	state    MemberState
	accepted uint64
	proposed uint64
}

// Image returns the member's approximation. Read it only between rounds.
func (m *Member) Image() *Image { return m.img }

func (m *Member) State() MemberState { return m.state }
func (m *Member) Accepted() uint64   { return m.accepted }
func (m *Member) Proposed() uint64   { return m.proposed }

func (m *Member) run(iterations int) {
	for i := 0; i < iterations; i++ {
		if m.searcher.Tick(m.img, m.rng) {
			m.accepted++
			m.state = StateImproving
		}
	}
	m.proposed += uint64(iterations)
}

// Ensemble drives N approximations of one target
type Ensemble struct {
	target    *Target
	members   []*Member
	finalized bool
}

// NewEnsemble creates cfg.Threads blank members
func NewEnsemble(target *Target, cfg Config) (*Ensemble, error) {
	return NewEnsembleFrom(target, nil, cfg)
}

// NewEnsembleFrom creates members that start from a copy of start instead of a
// blank canvas. A nil start means black.
func NewEnsembleFrom(target *Target, start *Image, cfg Config) (*Ensemble, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if start != nil && (start.Width != target.Width() || start.Height != target.Height()) {
		return nil, errors.New("starting canvas dimensions must match target")
	}

	members := make([]*Member, cfg.Threads)
	for i := range members {
		proposer, err := NewProposer(target, cfg)
		if err != nil {
			return nil, err
		}

		var img *Image
		if start != nil {
			img = start.Clone()
		} else {
			img = NewImage(target.Width(), target.Height())
		}

		members[i] = &Member{
			ID:       i,
			img:      img,
			rng:      rand.New(rand.NewSource(cfg.Seed + int64(i))),
			searcher: NewSearcher(target, proposer, cfg.Seams),
			state:    StateInitialized,
		}
	}

	return &Ensemble{target: target, members: members}, nil
}

func (e *Ensemble) Target() *Target    { return e.target }
func (e *Ensemble) Members() []*Member { return e.members }
func (e *Ensemble) Finalized() bool    { return e.finalized }

// Round runs iterations search steps on every member, one goroutine each, and
// returns once all of them are done.
func (e *Ensemble) Round(iterations int) error {
	if e.finalized {
		return ErrFinalized
	}

	var wg sync.WaitGroup
	for _, m := range e.members {
		wg.Add(1)
		go func(m *Member) {
			defer wg.Done()
			m.run(iterations)
		}(m)
	}
	wg.Wait()
	return nil
}

// Finalize freezes every member; later rounds fail with ErrFinalized
func (e *Ensemble) Finalize() {
	e.finalized = true
	for _, m := range e.members {
		m.state = StateFinal
	}
}

// Accepted is the total number of stamps accepted across members
func (e *Ensemble) Accepted() uint64 {
	var n uint64
	for _, m := range e.members {
		n += m.accepted
	}
	return n
}

// Proposed is the total number of search steps run across members
func (e *Ensemble) Proposed() uint64 {
	var n uint64
	for _, m := range e.members {
		n += m.proposed
	}
	return n
}

// composeBandRows is the minimum band height worth its own goroutine
const composeBandRows = 32

// Compose writes, per pixel, the color of the member with the lowest loss
// against the target into dst. Ties go to the lowest member index. Must not
// run concurrently with Round.
func (e *Ensemble) Compose(dst *Image) {
	if dst.Width != e.target.Width() || dst.Height != e.target.Height() {
		panic("Compose: destination dimensions must match target")
	}
	if len(e.members) == 1 {
		dst.CopyFrom(e.members[0].img)
		return
	}

	height := dst.Height
	bands := min(runtime.GOMAXPROCS(0), (height+composeBandRows-1)/composeBandRows)
	if bands <= 1 {
		e.composeRows(dst, 0, height)
		return
	}

	// Members are read-only here, so bands can be composed in parallel
	rows := (height + bands - 1) / bands
	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += rows {
		y1 := min(y0+rows, height)
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			e.composeRows(dst, y0, y1)
		}(y0, y1)
	}
	wg.Wait()
}

func (e *Ensemble) composeRows(dst *Image, y0, y1 int) {
	for y := y0; y < y1; y++ {
		for x := 0; x < dst.Width; x++ {
			want := e.target.ColorAt(x, y)

			best := e.members[0].img.ColorAt(x, y)
			bestLoss := PixelLoss(best, want)
			for _, m := range e.members[1:] {
				c := m.img.ColorAt(x, y)
				if loss := PixelLoss(c, want); loss < bestLoss {
					best, bestLoss = c, loss
				}
			}
			dst.SetColorAt(x, y, best)
		}
	}
}

// Composite allocates a new image and composes into it
func (e *Ensemble) Composite() *Image {
	dst := NewImage(e.target.Width(), e.target.Height())
	e.Compose(dst)
	return dst
}
