//go:build window

package display

import (
	"context"
	"fmt"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/cwbudde/circlez/internal/fit"
)

// WindowSupported reports whether this binary can open a window
const WindowSupported = true

// window is the ebiten game showing the latest frame
type window struct {
	width, height int
	cancel        context.CancelFunc
	done          <-chan struct{}

	mu    sync.Mutex
	frame []uint32
	dirty bool

	rgba    []uint8
	texture *ebiten.Image
}

// Present copies frame for the next Draw; called from the search goroutine
func (w *window) Present(frame []uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frame = append(w.frame[:0], frame...)
	w.dirty = true
}

func (w *window) Update() error {
	if ebiten.IsKeyPressed(ebiten.KeyEscape) || ebiten.IsWindowBeingClosed() {
		w.cancel()
	}
	select {
	case <-w.done:
		return ebiten.Termination
	default:
		return nil
	}
}

func (w *window) Draw(screen *ebiten.Image) {
	if w.texture == nil {
		w.texture = ebiten.NewImage(w.width, w.height)
	}

	w.mu.Lock()
	if w.dirty {
		w.rgba = fit.Unpack(w.frame, w.rgba)
		w.dirty = false
	}
	w.mu.Unlock()

	if w.rgba != nil {
		w.texture.WritePixels(w.rgba)
	}
	screen.DrawImage(w.texture, nil)
}

func (w *window) Layout(_, _ int) (int, int) {
	return w.width, w.height
}

func runWindow(ctx context.Context, opts Options, loop Loop) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	w := &window{
		width:  opts.Width,
		height: opts.Height,
		cancel: cancel,
		done:   done,
	}

	var loopErr error
	go func() {
		defer close(done)
		loopErr = loop(ctx, w)
	}()

	scale := opts.scale()
	ebiten.SetWindowSize(opts.Width*scale, opts.Height*scale)
	ebiten.SetWindowTitle(opts.Title)
	ebiten.SetWindowClosingHandled(true)

	if err := ebiten.RunGame(w); err != nil {
		cancel()
		<-done
		return fmt.Errorf("failed to run window: %w", err)
	}
	<-done
	return loopErr
}
