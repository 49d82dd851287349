package lockfleet

import (
	"context"
	"sort"
	"time"
)

// Coordinator acquires several locks at once for an operation that touches
// multiple resources (e.g. a transfer between two accounts). It always
// acquires the underlying keys in the same deterministic order, regardless
// of the order the caller passed them in, so two operations that both need
// locks A and B can never each hold one while waiting on the other.
type Coordinator struct {
	lock    Lock
	logger  Logger
	metrics Metrics
}

// NewCoordinator creates a Coordinator over the given Lock backend. A
// Registry does not implement Lock; passing registry.Active() pins the
// coordinator to the backend active at construction time, and the
// coordinator does not follow a later Switch.
func NewCoordinator(lock Lock, logger Logger, metrics Metrics) *Coordinator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &Coordinator{lock: lock, logger: logger, metrics: metrics}
}

// MultiHandle is the result of AcquireAll: the handles for every key, in
// the deterministic order they were acquired (not the caller's input
// order), so ReleaseAll can release them in reverse.
type MultiHandle struct {
	Handles []*LockHandle
}

// AcquireAll acquires every key in keys, sorted into a fixed lexicographic
// order first. If any acquisition fails partway through, every lock
// acquired so far is released before the error is returned, so callers
// never need special-case cleanup for a partial failure.
func (c *Coordinator) AcquireAll(ctx context.Context, keys []string, ttl time.Duration) (*MultiHandle, error) {
	ordered := distinctSorted(keys)

	handles := make([]*LockHandle, 0, len(ordered))
	for _, key := range ordered {
		handle, err := c.lock.Acquire(ctx, key, ttl)
		if err != nil {
			c.releaseAcquired(ctx, handles)
			c.logger.Warn("multi-lock acquisition failed partway through", "failed_key", key, "error", err.Error())
			return nil, err
		}
		handles = append(handles, handle)
	}

	c.logger.Debug("acquired multi-lock set", "keys", ordered)
	return &MultiHandle{Handles: handles}, nil
}

// TryAcquireAll is AcquireAll's bounded-retry counterpart: it uses
// TryAcquire for each key instead of blocking indefinitely.
func (c *Coordinator) TryAcquireAll(ctx context.Context, keys []string, ttl time.Duration, maxRetries int) (*MultiHandle, error) {
	ordered := distinctSorted(keys)

	handles := make([]*LockHandle, 0, len(ordered))
	for _, key := range ordered {
		handle, err := c.lock.TryAcquire(ctx, key, ttl, maxRetries)
		if err != nil {
			c.releaseAcquired(ctx, handles)
			return nil, err
		}
		handles = append(handles, handle)
	}
	return &MultiHandle{Handles: handles}, nil
}

// ReleaseAll releases every handle in mh, in reverse acquisition order, and
// returns the first error encountered (after attempting every release, so
// one failure doesn't strand the rest).
func (c *Coordinator) ReleaseAll(ctx context.Context, mh *MultiHandle) error {
	var firstErr error
	for i := len(mh.Handles) - 1; i >= 0; i-- {
		if err := c.lock.Release(ctx, mh.Handles[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Coordinator) releaseAcquired(ctx context.Context, handles []*LockHandle) {
	for i := len(handles) - 1; i >= 0; i-- {
		if err := c.lock.Release(ctx, handles[i]); err != nil {
			c.logger.Error("failed to release lock during acquisition rollback", "key", handles[i].Key, "error", err.Error())
		}
	}
}

// distinctSorted sorts keys lexicographically and removes duplicates, so a
// caller that accidentally lists the same key twice doesn't deadlock
// acquiring it against itself.
func distinctSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)
	return ordered
}
