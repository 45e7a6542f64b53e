package bosun

import (
	"errors"
	"fmt"
)

var (
	// ErrBusClosed is returned by publish and drain operations after
	// Close. A closed bus is a hard failure: the consumer should force
	// its fast poll cadence and report, not panic.
	ErrBusClosed = errors.New("event bus closed")

	// ErrBackendClosed reports that a backend connection ended its
	// event stream without a failure of its own.
	ErrBackendClosed = errors.New("backend event stream closed")

	// ErrRuntimeUnavailable reports that no runtime context is
	// available to spawn background work into.
	ErrRuntimeUnavailable = errors.New("runtime unavailable")
)

// QueueFullError is returned by Bus.Publish when the bounded queue is
// at capacity. The envelope is dropped; producers must treat this as
// best-effort delivery, never as a reason to block or retry.
type QueueFullError struct {
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("event bus queue full (capacity %d)", e.Capacity)
}

// IsQueueFull reports whether err is a dropped-envelope failure.
func IsQueueFull(err error) bool {
	var qf *QueueFullError
	return errors.As(err, &qf)
}
