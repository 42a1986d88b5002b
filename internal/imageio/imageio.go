// Package imageio loads target images and exports approximations.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cwbudde/circlez/internal/fit"
)

const (
	// DefaultOutDir is where approximations land when no directory is given
	DefaultOutDir = "generated_images"
	// DefaultExt is the export format when no extension is given
	DefaultExt = "jpg"
	// JPEGQuality is used for every JPEG export
	JPEGQuality = 95
)

// Load decodes the image at path into an RGB buffer
func Load(path string) (*fit.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, err := Decode(f)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	slog.Debug("Loaded image", "path", path, "width", img.Width, "height", img.Height)
	return img, nil
}

// Decode reads any registered format from r
func Decode(r io.Reader) (*fit.Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%s image has no pixels", format)
	}
	return fit.ImageFromStd(src), nil
}

// Save encodes img in the format implied by the extension of path, creating
// the parent directory if needed. The file is written through a temporary file
// and renamed into place.
func Save(path string, img *fit.Image) error {
	var buf bytes.Buffer
	if err := Encode(&buf, img, filepath.Ext(path)); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &WriteError{Path: path, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, ".circlez-*")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &WriteError{Path: path, Err: err}
	}

	slog.Debug("Saved image", "path", path, "bytes", buf.Len())
	return nil
}

// Encode writes img to w in the format named by ext (with or without dot)
func Encode(w io.Writer, img *fit.Image, ext string) error {
	nrgba := img.ToNRGBA()

	switch normalizeExt(ext) {
	case "jpg", "jpeg":
		return jpeg.Encode(w, nrgba, &jpeg.Options{Quality: JPEGQuality})
	case "png":
		return png.Encode(w, nrgba)
	case "bmp":
		return bmp.Encode(w, nrgba)
	case "tif", "tiff":
		return tiff.Encode(w, nrgba, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// OutputPath returns <outDir>/<stem>_circlez.<ext> for an input path
func OutputPath(outDir, input, ext string) string {
	if outDir == "" {
		outDir = DefaultOutDir
	}
	ext = normalizeExt(ext)
	if ext == "" {
		ext = DefaultExt
	}

	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outDir, stem+"_circlez."+ext)
}

// SupportedExt reports whether Save can write the given extension
func SupportedExt(ext string) bool {
	switch normalizeExt(ext) {
	case "jpg", "jpeg", "png", "bmp", "tif", "tiff":
		return true
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
