package imageio

import (
	"image"
	"image/color"
	"math"

	"github.com/cwbudde/circlez/internal/fit"
)

// maxDistance is the largest RGB distance between two colors
var maxDistance = math.Sqrt(3 * 255 * 255)

// DiffImage renders the per-pixel distance between target and approx as a
// false-color image: black where they agree, red where they differ most.
func DiffImage(target *fit.Target, approx *fit.Image) *image.NRGBA {
	w, h := target.Width(), target.Height()
	diff := image.NewNRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dist := math.Sqrt(fit.PixelLoss(target.ColorAt(x, y), approx.ColorAt(x, y)))
			level := uint8(math.Min(255, math.Round(dist/maxDistance*255)))
			diff.SetNRGBA(x, y, color.NRGBA{R: level, A: 255})
		}
	}
	return diff
}
