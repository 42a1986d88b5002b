package fit

import (
	"errors"
	"fmt"
	"strings"
)

// CirclePoints returns the boundary of a circle using the midpoint algorithm.
//
// Every step emits its eight octant reflections in a fixed order:
//
//	(+x,+y) (-x,+y) (+x,-y) (-x,-y) (+y,+x) (-y,+x) (+y,-x) (-y,-x)
//
// so points on the axes (x == 0) and diagonals (x == y) appear twice.
// Coordinates are signed and not clipped to any image.
func CirclePoints(cx, cy, r int) []Point {
	if r < 1 {
		panic(fmt.Sprintf("fit: circle radius must be >= 1, got %d", r))
	}

	points := make([]Point, 0, 8*(r+1))
	x, y := 0, r
	d := 3 - 2*r

	for x <= y {
		points = append(points,
			Point{cx + x, cy + y},
			Point{cx - x, cy + y},
			Point{cx + x, cy - y},
			Point{cx - x, cy - y},
			Point{cx + y, cy + x},
			Point{cx - y, cy + x},
			Point{cx + y, cy - x},
			Point{cx - y, cy - x},
		)

		if d < 0 {
			d += 4*x + 6
		} else {
			d += 4*(x-y) + 10
			y--
		}
		x++
	}
	return points
}

// DedupeSeams drops the seam duplicates from a CirclePoints result centered at
// (cx, cy). Distinct steps never collide, so only the groups with x == 0 or
// x == y need trimming; no hashing is required.
func DedupeSeams(points []Point, cx, cy int) []Point {
	out := make([]Point, 0, len(points))
	for i := 0; i+8 <= len(points); i += 8 {
		g := points[i : i+8]
		x, y := g[0].X-cx, g[0].Y-cy
		switch {
		case x == 0:
			out = append(out, g[0], g[2], g[4], g[5])
		case x == y:
			out = append(out, g[0], g[1], g[2], g[3])
		default:
			out = append(out, g...)
		}
	}
	return out
}

// SeamPolicy controls how rasterizer seam duplicates are scored
type SeamPolicy string

const (
	// SeamsUnique scores each boundary position once
	SeamsUnique SeamPolicy = "unique"
	// SeamsRaw scores every emitted point, counting seam positions twice
	SeamsRaw SeamPolicy = "raw"
)

// ErrUnknownSeamPolicy is returned when the name does not match a known policy.
var ErrUnknownSeamPolicy = errors.New("unknown seam policy")

// ParseSeamPolicy maps user input to a SeamPolicy
func ParseSeamPolicy(name string) (SeamPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "unique", "dedupe":
		return SeamsUnique, nil
	case "raw":
		return SeamsRaw, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownSeamPolicy, name)
	}
}
