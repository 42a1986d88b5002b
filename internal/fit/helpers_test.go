package fit

import (
	"math/rand"
	"testing"
)

// solidImage creates an image filled with a single color
func solidImage(width, height int, c Color) *Image {
	img := NewImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetColorAt(x, y, c)
		}
	}
	return img
}

// randomImage creates an image with random pixel values
func randomImage(width, height int, seed int64) *Image {
	rng := rand.New(rand.NewSource(seed))
	img := NewImage(width, height)
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// fixedProposer always proposes the same circle
type fixedProposer struct {
	target *Target
	cx, cy int
	r      int
	color  Color
}

func (p *fixedProposer) Propose(_ *Image, _ *rand.Rand) Stamp {
	return Stamp{
		CX:     p.cx,
		CY:     p.cy,
		R:      p.r,
		Points: CirclePoints(p.cx, p.cy, p.r),
		Color:  p.color,
	}
}

func testConfig(threads, iterations int) Config {
	cfg := DefaultConfig()
	cfg.Threads = threads
	cfg.Iterations = iterations
	return cfg
}

func mustEnsemble(t *testing.T, target *Target, cfg Config) *Ensemble {
	t.Helper()
	ens, err := NewEnsemble(target, cfg)
	if err != nil {
		t.Fatalf("Failed to create ensemble: %v", err)
	}
	return ens
}
