package flow

import "errors"

var (
	ErrFrameMismatch  = errors.New("frame dimensions or format mismatch")
	ErrFrameSize      = errors.New("invalid frame size")
	ErrOutOfMemory    = errors.New("frame buffers exceed memory budget")
	ErrNoDisplacement = errors.New("displacement could not be computed")
)
