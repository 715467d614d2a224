package hub

import "errors"

var (
	// ErrClosed is returned by Join after Shutdown.
	ErrClosed = errors.New("hub closed")
	// ErrSlowConsumer is returned by a connection whose send buffer is full.
	ErrSlowConsumer = errors.New("send buffer full")
)
