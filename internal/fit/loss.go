package fit

// PixelLoss is the squared RGB distance between two colors, in [0, 3*255^2]
func PixelLoss(a, b Color) float64 {
	dr := float64(a[0]) - float64(b[0])
	dg := float64(a[1]) - float64(b[1])
	db := float64(a[2]) - float64(b[2])
	return dr*dr + dg*dg + db*db
}

// LossDelta returns how much total loss would change if changes were applied
// to approx. Only the pixels named in changes are read. A negative result
// means the change set strictly improves the approximation.
//
// The sum runs over entries, not unique positions: a point listed twice is
// counted twice.
func LossDelta(target *Target, approx *Image, changes []Change) float64 {
	var delta float64
	for _, ch := range changes {
		want := target.ColorAt(ch.P.X, ch.P.Y)
		before := PixelLoss(want, approx.ColorAt(ch.P.X, ch.P.Y))
		after := PixelLoss(want, ch.C)
		delta += after - before
	}
	return delta
}

// RegionLoss sums PixelLoss over the given points without deduplication
func RegionLoss(target *Target, img *Image, points []Point) float64 {
	var sum float64
	for _, p := range points {
		sum += PixelLoss(target.ColorAt(p.X, p.Y), img.ColorAt(p.X, p.Y))
	}
	return sum
}
