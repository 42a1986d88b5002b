package fit

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Color is an 8-bit RGB triple
type Color [3]uint8

// Black is the zero color every approximation starts from
var Black = Color{0, 0, 0}

// Point is a signed pixel coordinate. Rasterized points may lie outside the image.
type Point struct {
	X, Y int
}

// Change proposes writing C at P
type Change struct {
	P Point
	C Color
}

// Image is a row-major RGB pixel buffer with 3 bytes per pixel
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewImage allocates a zero-filled (black) image
func NewImage(width, height int) *Image {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("fit: invalid image size %dx%d", width, height))
	}
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// ImageFromStd copies a decoded image into an RGB buffer. Alpha is dropped.
func ImageFromStd(src image.Image) *Image {
	bounds := src.Bounds()

	// Normalize to a zero-origin NRGBA so the copy below is a flat walk
	nrgba, ok := src.(*image.NRGBA)
	if !ok || bounds.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)
	}

	img := NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < img.Height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < img.Width; x++ {
			o := (y*img.Width + x) * 3
			copy(img.Pix[o:o+3], row[x*4:x*4+3])
		}
	}
	return img
}

// In reports whether (x, y) lies inside the image
func (img *Image) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < img.Width && y < img.Height
}

func (img *Image) offset(x, y int) int {
	if !img.In(x, y) {
		panic(fmt.Sprintf("fit: pixel (%d,%d) out of bounds %dx%d", x, y, img.Width, img.Height))
	}
	return (y*img.Width + x) * 3
}

// ColorAt returns the color at (x, y). Panics when out of bounds.
func (img *Image) ColorAt(x, y int) Color {
	o := img.offset(x, y)
	return Color{img.Pix[o], img.Pix[o+1], img.Pix[o+2]}
}

// SetColorAt writes c at (x, y). Panics when out of bounds.
func (img *Image) SetColorAt(x, y int, c Color) {
	o := img.offset(x, y)
	img.Pix[o+0] = c[0]
	img.Pix[o+1] = c[1]
	img.Pix[o+2] = c[2]
}

// Apply writes every change. Callers must have filtered out-of-bounds points.
func (img *Image) Apply(changes []Change) {
	for _, ch := range changes {
		img.SetColorAt(ch.P.X, ch.P.Y, ch.C)
	}
}

// Clone returns a deep copy
func (img *Image) Clone() *Image {
	out := &Image{Width: img.Width, Height: img.Height, Pix: make([]uint8, len(img.Pix))}
	copy(out.Pix, img.Pix)
	return out
}

// CopyFrom overwrites img with src. Dimensions must match.
func (img *Image) CopyFrom(src *Image) {
	if !img.SameSize(src) {
		panic("fit: image dimensions must match")
	}
	copy(img.Pix, src.Pix)
}

// SameSize reports whether both images have identical dimensions
func (img *Image) SameSize(other *Image) bool {
	return img.Width == other.Width && img.Height == other.Height
}

// ToNRGBA converts to an opaque standard library image for encoding
func (img *Image) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i, j := 0, 0; i < len(img.Pix); i, j = i+3, j+4 {
		out.Pix[j+0] = img.Pix[i+0]
		out.Pix[j+1] = img.Pix[i+1]
		out.Pix[j+2] = img.Pix[i+2]
		out.Pix[j+3] = 0xff
	}
	return out
}

// NRGBA returns c as a standard library color
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: 0xff}
}

// Target is a read-only handle on the reference image. It is safe to share
// across goroutines because nothing can write through it.
type Target struct {
	img *Image
}

// NewTarget takes ownership of img; the caller must not mutate it afterwards.
func NewTarget(img *Image) *Target {
	return &Target{img: img}
}

func (t *Target) Width() int  { return t.img.Width }
func (t *Target) Height() int { return t.img.Height }

// In reports whether (x, y) lies inside the target
func (t *Target) In(x, y int) bool { return t.img.In(x, y) }

// ColorAt returns the target color at (x, y)
func (t *Target) ColorAt(x, y int) Color { return t.img.ColorAt(x, y) }

// MaxRadius is the largest radius a candidate may have: min(w,h)/4, at least 1
func (t *Target) MaxRadius() int {
	r := min(t.img.Width, t.img.Height) / 4
	if r < 1 {
		return 1
	}
	return r
}
