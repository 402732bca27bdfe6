package sensor

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	ErrNotConfigured     = errors.New("sensor not configured")
)
