// Package lock provides distributed locking for serializing reservation
// writes across multiple service instances.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a lock cannot be acquired within the caller's timeout.
var ErrTimeout = errors.New("lock: acquisition timed out")

// Locker acquires named locks shared by every instance of the fleet.
// Implementations must be safe for concurrent use.
type Locker interface {
	// Acquire blocks until the lock named key is held or timeout elapses.
	// On timeout it returns ErrTimeout. The returned Handle must be
	// released by the caller on every exit path.
	Acquire(ctx context.Context, key string, timeout time.Duration) (Handle, error)
}

// Handle represents a held lock.
type Handle interface {
	// Release frees the lock. It is idempotent and safe to call more than
	// once; extra calls are no-ops.
	Release()
}
