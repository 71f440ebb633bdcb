package libgpu

import "errors"

var (
	// ErrAllocation is returned when the device can not satisfy an
	// image, buffer, pipeline or descriptor allocation.
	ErrAllocation = errors.New("device allocation failed")
	// ErrSubmit is returned when recording or submitting a command
	// buffer fails.
	ErrSubmit = errors.New("command submission failed")
	// ErrNotFound is returned when an image handle refers to an image
	// that has been destroyed.
	ErrNotFound = errors.New("image not found")
	ErrInvalid  = errors.New("invalid argument")
	// ErrLayout is returned when a command uses a sub-resource in a
	// layout other than the one it requires.
	ErrLayout      = errors.New("invalid image layout")
	ErrUnsupported = errors.New("unsupported by device")
	ErrCompile     = errors.New("program compilation failed")
)
