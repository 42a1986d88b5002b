//go:build !window

package display

import "context"

// WindowSupported reports whether this binary can open a window
const WindowSupported = false

func runWindow(context.Context, Options, Loop) error {
	return ErrWindowUnsupported
}
