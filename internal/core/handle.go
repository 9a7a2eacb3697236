// Package core holds the in-memory connection plumbing: the presence
// registry and the broadcast bus. It knows nothing about persistence
// or the wire protocol beyond raw frames.
package core

import "errors"

// Frame is one serialized outbound event.
type Frame = []byte

var ErrBackpressure = errors.New("backpressure")

// Handle is an opaque reference usable to push one event to exactly one
// connected session, or to force that session closed.
type Handle interface {
	// TrySend queues a frame without blocking. A full queue or a closed
	// connection returns an error; the caller treats delivery as
	// fire-and-forget.
	TrySend(Frame) error

	// ForceClose closes the session's transport with the given close
	// code and prevents it from processing further inbound events.
	ForceClose(code int)
}
