// Package display shows the composed approximation while a search runs.
//
// The search loop is handed a Presenter and runs on its own goroutine when a
// window is open, because ebiten needs the main goroutine. Closing the window
// or pressing Escape cancels the loop's context; the loop still finishes its
// round and exports before the window goes away.
package display

import (
	"context"
	"errors"
	"sync"
)

// ErrWindowUnsupported is returned by Run when a window is requested from a
// binary built without the window tag.
var ErrWindowUnsupported = errors.New("window support not compiled in (build with -tags window)")

// Presenter receives composed frames, packed 0x00RRGGBB row-major. The frame
// may be reused by the caller once Present returns.
type Presenter interface {
	Present(frame []uint32)
}

// Loop is the search driven by Run. ctx is cancelled when the user closes the
// surface.
type Loop func(ctx context.Context, p Presenter) error

// Options configures a window surface
type Options struct {
	Title  string
	Width  int
	Height int
	// Scale multiplies the window size; values below 1 mean 1
	Scale int
}

func (o Options) scale() int {
	if o.Scale < 1 {
		return 1
	}
	return o.Scale
}

// Run runs loop against a window when window is true, otherwise headless on
// the calling goroutine.
func Run(ctx context.Context, opts Options, window bool, loop Loop) error {
	if !window {
		return loop(ctx, &Headless{})
	}
	if !WindowSupported {
		return ErrWindowUnsupported
	}
	return runWindow(ctx, opts, loop)
}

// Headless keeps the latest frame in memory and counts presented frames
type Headless struct {
	mu     sync.Mutex
	last   []uint32
	frames int
}

// Present copies frame
func (h *Headless) Present(frame []uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = append(h.last[:0], frame...)
	h.frames++
}

// Frames returns the number of frames presented so far
func (h *Headless) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Last returns a copy of the most recent frame, or nil
func (h *Headless) Last() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil
	}
	return append([]uint32(nil), h.last...)
}
