package link

import "errors"

var (
	ErrWriteTimeout = errors.New("serial write timed out")
	ErrClosed       = errors.New("transport closed")
)
