package lockfleet

import (
	"context"
	"time"
)

// BackendName identifies which lock backend is providing a Lock implementation.
type BackendName string

const (
	BackendRedis     BackendName = "redis"
	BackendZooKeeper BackendName = "zookeeper"
)

// LockHandle identifies a held lock: the key it protects, the backend that
// granted it, and when it was acquired. Backends attach their own bookkeeping
// (owner token, sequence node path, reentrancy depth) behind this type.
type LockHandle struct {
	Key        string
	Backend    BackendName
	AcquiredAt time.Time
}

// Lock is the interface both the Redis and ZooKeeper backends implement.
// A Lock value represents one logical caller identity: acquiring a key the
// same Lock value already holds is reentrant (it increments a hold count
// rather than blocking on itself), and Release only gives up the underlying
// lease once the hold count returns to zero.
type Lock interface {
	// Acquire blocks until the lock is held or ctx is canceled. Waiters are
	// woken as soon as the current holder releases, rather than polling.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*LockHandle, error)

	// TryAcquire attempts to acquire the lock, retrying with backoff up to
	// maxRetries times, and returns ErrLockWaitTimeout if it never succeeds.
	TryAcquire(ctx context.Context, key string, ttl time.Duration, maxRetries int) (*LockHandle, error)

	// Release gives up ownership of the lock identified by handle. If the
	// caller holds it reentrantly, Release decrements the hold count and
	// only removes the underlying lease when it reaches zero.
	Release(ctx context.Context, handle *LockHandle) error

	// Renew extends the lock's TTL. Returns ErrLockLost if the caller no
	// longer owns the lock (it expired, or another caller raced in).
	Renew(ctx context.Context, handle *LockHandle, ttl time.Duration) error

	// IsHeld reports whether the given handle still owns the lock.
	IsHeld(ctx context.Context, handle *LockHandle) (bool, error)

	// Name identifies which backend this implementation is.
	Name() BackendName

	// ActiveCount reports how many locks this backend instance currently
	// holds, so a retiring backend can be drained down to zero rather than
	// closed out from under live holders.
	ActiveCount() int

	// Close releases resources held by the backend (connections, background
	// goroutines). It does not release any locks still held.
	Close() error
}
