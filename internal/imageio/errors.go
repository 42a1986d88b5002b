package imageio

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when a file extension has no encoder
var ErrUnsupportedFormat = errors.New("unsupported image format")

// DecodeError is returned when a target image cannot be opened or decoded
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &DecodeError{}) without a matching path
func (e *DecodeError) Is(target error) bool {
	_, ok := target.(*DecodeError)
	return ok
}

// WriteError is returned when an approximation cannot be encoded or written
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write image %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, &WriteError{}) without a matching path
func (e *WriteError) Is(target error) bool {
	_, ok := target.(*WriteError)
	return ok
}
