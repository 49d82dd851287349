package lockfleet

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samuel/go-zookeeper/zk"
)

// ZKLock implements Lock using the classic ZooKeeper recipe: each waiter
// creates an ephemeral sequential child under the lock's directory node,
// and owns the lock once its child is the lowest-numbered sibling. Rather
// than watch the whole directory (and suffer a herd effect every time any
// waiter comes or goes), each waiter watches only its immediate
// predecessor, so a release wakes exactly one waiter.
type ZKLock struct {
	conn      *zk.Conn
	keyPrefix string
	logger    Logger
	metrics   Metrics
	telemetry *Telemetry

	mu   sync.Mutex
	held map[string]*zkLease
}

type zkLease struct {
	count      int
	nodePath   string
	acquiredAt time.Time
}

// NewZKLock creates a ZooKeeper-backed Lock. keyPrefix is the root znode
// under which per-key lock directories are created (e.g. "/lockfleet").
func NewZKLock(conn *zk.Conn, keyPrefix string, logger Logger, metrics Metrics) *ZKLock {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &ZKLock{
		conn:      conn,
		keyPrefix: keyPrefix,
		logger:    logger,
		metrics:   metrics,
		held:      make(map[string]*zkLease),
	}
}

func (z *ZKLock) Name() BackendName { return BackendZooKeeper }

// WithTelemetry attaches a Telemetry tracker so this backend's acquire and
// release activity is reflected in /lock-management/status. Optional: a
// ZKLock with no telemetry attached behaves exactly as before.
func (z *ZKLock) WithTelemetry(t *Telemetry) *ZKLock {
	z.telemetry = t
	return z
}

func (z *ZKLock) recordAcquireAttempt(ctx context.Context, success bool) {
	if z.telemetry != nil {
		z.telemetry.RecordAcquireAttempt(ctx, success)
	}
}

func (z *ZKLock) recordActiveLocksDelta(delta int64) {
	if z.telemetry != nil {
		z.telemetry.RecordActiveLocksDelta(delta)
	}
}

func (z *ZKLock) lockDir(key string) string {
	return path.Join(z.keyPrefix, sanitizeZKPath(key))
}

// sanitizeZKPath replaces path separators in a lock key so it can be used
// as a single znode name without creating nested directories per key.
func sanitizeZKPath(key string) string {
	return strings.ReplaceAll(key, "/", "_")
}

func (z *ZKLock) ensureDir(dir string) error {
	exists, _, err := z.conn.Exists(dir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	// Create parent chain; ZooKeeper has no mkdir -p.
	parts := strings.Split(strings.Trim(dir, "/"), "/")
	current := ""
	for _, part := range parts {
		current += "/" + part
		exists, _, err := z.conn.Exists(current)
		if err != nil {
			return err
		}
		if !exists {
			_, err := z.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

// Acquire blocks until this caller's sequential node becomes the lowest
// child of the lock directory, or ctx is canceled.
func (z *ZKLock) Acquire(ctx context.Context, key string, ttl time.Duration) (*LockHandle, error) {
	z.metrics.Increment(MetricAcquireAttempts, "backend", string(BackendZooKeeper))
	start := time.Now()

	if handle, ok := z.reenter(key); ok {
		z.metrics.Increment(MetricAcquireSuccess, "backend", string(BackendZooKeeper))
		z.recordAcquireAttempt(ctx, true)
		return handle, nil
	}

	dir := z.lockDir(key)
	if err := z.ensureDir(dir); err != nil {
		z.metrics.Increment(MetricAcquireFailure, "backend", string(BackendZooKeeper), "reason", "backend_error")
		z.recordAcquireAttempt(ctx, false)
		return nil, WithContext(ErrLockBackendError, map[string]interface{}{"key": key, "cause": err.Error()})
	}

	nodePath, err := z.conn.CreateProtectedEphemeralSequential(dir+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		z.metrics.Increment(MetricAcquireFailure, "backend", string(BackendZooKeeper), "reason", "backend_error")
		z.recordAcquireAttempt(ctx, false)
		return nil, WithContext(ErrLockBackendError, map[string]interface{}{"key": key, "cause": err.Error()})
	}

	for {
		owns, watchCh, err := z.isLowestSequence(dir, nodePath)
		if err != nil {
			z.conn.Delete(nodePath, -1)
			z.metrics.Increment(MetricAcquireFailure, "backend", string(BackendZooKeeper), "reason", "backend_error")
			z.recordAcquireAttempt(ctx, false)
			return nil, WithContext(ErrLockBackendError, map[string]interface{}{"key": key, "cause": err.Error()})
		}
		if owns {
			break
		}

		select {
		case <-ctx.Done():
			z.conn.Delete(nodePath, -1)
			z.metrics.Increment(MetricAcquireFailure, "backend", string(BackendZooKeeper), "reason", "context_canceled")
			z.recordAcquireAttempt(ctx, false)
			return nil, ctx.Err()
		case <-watchCh:
			// Predecessor node changed (most likely deleted); re-check.
		}
	}

	z.metrics.Increment(MetricAcquireSuccess, "backend", string(BackendZooKeeper))
	z.metrics.Timing(MetricAcquireLatency, time.Since(start), "backend", string(BackendZooKeeper))
	z.recordAcquireAttempt(ctx, true)
	return z.startHolding(key, nodePath), nil
}

// TryAcquire runs a single Acquire bounded by an overall timeout computed
// from DefaultRetryConfig's backoff schedule over maxRetries, instead of
// blocking forever on the predecessor's watch.
func (z *ZKLock) TryAcquire(ctx context.Context, key string, ttl time.Duration, maxRetries int) (*LockHandle, error) {
	if handle, ok := z.reenter(key); ok {
		z.recordAcquireAttempt(ctx, true)
		return handle, nil
	}

	config := DefaultRetryConfig()
	config.MaxRetries = maxRetries

	deadlineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		handle *LockHandle
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		h, err := z.Acquire(deadlineCtx, key, ttl)
		resultCh <- result{h, err}
	}()

	timeout := config.InitialBackoff
	for i := 0; i < config.MaxRetries; i++ {
		timeout += config.InitialBackoff * time.Duration(int64(1)<<uint(i))
	}

	select {
	case res := <-resultCh:
		return res.handle, res.err
	case <-time.After(timeout):
		cancel()
		<-resultCh // drain so the goroutine doesn't leak
		return nil, WithContext(ErrLockWaitTimeout, map[string]interface{}{
			"key":         key,
			"max_retries": config.MaxRetries,
		})
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (z *ZKLock) reenter(key string) (*LockHandle, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	lease, ok := z.held[key]
	if !ok {
		return nil, false
	}
	lease.count++
	return &LockHandle{Key: key, Backend: BackendZooKeeper, AcquiredAt: lease.acquiredAt}, true
}

func (z *ZKLock) startHolding(key, nodePath string) *LockHandle {
	z.mu.Lock()
	defer z.mu.Unlock()
	now := Now()
	z.held[key] = &zkLease{count: 1, nodePath: nodePath, acquiredAt: now}
	z.metrics.Gauge(MetricActiveLocks, float64(len(z.held)), "backend", string(BackendZooKeeper))
	z.recordActiveLocksDelta(1)
	return &LockHandle{Key: key, Backend: BackendZooKeeper, AcquiredAt: now}
}

// isLowestSequence reports whether nodePath is the lowest-sequence child of
// dir. If not, it returns a channel that fires when the immediate
// predecessor changes.
func (z *ZKLock) isLowestSequence(dir, nodePath string) (bool, <-chan zk.Event, error) {
	children, _, err := z.conn.Children(dir)
	if err != nil {
		return false, nil, err
	}
	sort.Strings(children)

	base := path.Base(nodePath)
	idx := -1
	for i, c := range children {
		if c == base {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false, nil, fmt.Errorf("lock node %s vanished from %s", base, dir)
	}
	if idx == 0 {
		return true, nil, nil
	}

	predecessor := path.Join(dir, children[idx-1])
	_, _, watch, err := z.conn.ExistsW(predecessor)
	if err != nil {
		// Predecessor already gone; re-check immediately by returning a
		// closed channel equivalent (caller will loop).
		closed := make(chan zk.Event)
		close(closed)
		return false, closed, nil
	}
	return false, watch, nil
}

// Release removes this caller's ephemeral node once the hold count reaches
// zero, yielding ownership to the next-lowest sequence node.
func (z *ZKLock) Release(ctx context.Context, handle *LockHandle) error {
	z.metrics.Increment(MetricReleaseAttempts, "backend", string(BackendZooKeeper))

	z.mu.Lock()
	lease, ok := z.held[handle.Key]
	if !ok {
		z.mu.Unlock()
		z.metrics.Increment(MetricReleaseFailure, "backend", string(BackendZooKeeper), "reason", "not_held")
		return WithContext(ErrLockNotHeldByCaller, map[string]interface{}{"key": handle.Key})
	}
	lease.count--
	if lease.count > 0 {
		z.mu.Unlock()
		z.metrics.Increment(MetricReleaseSuccess, "backend", string(BackendZooKeeper))
		return nil
	}
	delete(z.held, handle.Key)
	nodePath := lease.nodePath
	z.mu.Unlock()

	z.metrics.Histogram(MetricHoldDuration, time.Since(lease.acquiredAt).Seconds(), "backend", string(BackendZooKeeper))
	z.metrics.Gauge(MetricActiveLocks, float64(z.ActiveCount()), "backend", string(BackendZooKeeper))
	z.recordActiveLocksDelta(-1)

	if err := z.conn.Delete(nodePath, -1); err != nil && err != zk.ErrNoNode {
		z.metrics.Increment(MetricReleaseFailure, "backend", string(BackendZooKeeper), "reason", "backend_error")
		return WithContext(ErrLockBackendError, map[string]interface{}{"key": handle.Key, "cause": err.Error()})
	}

	z.metrics.Increment(MetricReleaseSuccess, "backend", string(BackendZooKeeper))
	return nil
}

// Renew extends nothing for the ZooKeeper backend: ownership is tied to the
// ephemeral node's session, not a TTL, so ttl is ignored. It only checks
// that the caller still holds the lock and returns ErrLockLost if not.
func (z *ZKLock) Renew(ctx context.Context, handle *LockHandle, ttl time.Duration) error {
	held, err := z.IsHeld(ctx, handle)
	if err != nil {
		return err
	}
	if !held {
		return WithContext(ErrLockLost, map[string]interface{}{"key": handle.Key})
	}
	return nil
}

// IsHeld reports whether this caller's ephemeral node still exists and is
// still the lowest-sequence child of the lock's directory.
func (z *ZKLock) IsHeld(ctx context.Context, handle *LockHandle) (bool, error) {
	z.mu.Lock()
	lease, ok := z.held[handle.Key]
	if !ok {
		z.mu.Unlock()
		return false, nil
	}
	nodePath := lease.nodePath
	z.mu.Unlock()

	dir := z.lockDir(handle.Key)
	owns, _, err := z.isLowestSequence(dir, nodePath)
	if err != nil {
		return false, WithContext(ErrLockBackendError, map[string]interface{}{"key": handle.Key, "cause": err.Error()})
	}
	return owns, nil
}

// ActiveCount reports how many locks this ZKLock currently holds, so a
// retiring backend can be drained down to zero rather than closed out from
// under live holders.
func (z *ZKLock) ActiveCount() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return len(z.held)
}

// Close closes the underlying ZooKeeper connection. It does not release
// any ephemeral nodes still held - callers must Release them first (though
// the ZooKeeper server will reclaim them once the session expires anyway).
func (z *ZKLock) Close() error {
	z.conn.Close()
	return nil
}
