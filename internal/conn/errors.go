package conn

import "errors"

var (
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("connection closed")
	// ErrNotConnected is returned when no session is active.
	ErrNotConnected = errors.New("not connected")
)
