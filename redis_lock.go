package lockfleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript sets the lock key only if absent, so two callers racing on
// SETNX never both believe they hold the lease.
var acquireScript = redis.NewScript(`
	if redis.call("exists", KEYS[1]) == 0 then
		redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	end
	return 0
`)

// releaseScript only deletes the key if the caller's token still matches,
// so a lease that expired and was re-acquired by someone else is never torn
// down by the original, now-stale, owner.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		redis.call("del", KEYS[1])
		return 1
	end
	return 0
`)

// renewScript extends the TTL only if the caller still owns the lease.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		redis.call("pexpire", KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

type heldLease struct {
	token          string
	count          int
	ttl            time.Duration
	acquiredAt     time.Time
	cancelWatchdog context.CancelFunc
	lost           bool
}

// RedisLock implements Lock with a SETNX lease: the holder's token is the
// lock's value, a watchdog goroutine renews the TTL while held, and waiters
// block on a pub/sub channel instead of polling.
//
// A RedisLock value is one logical caller identity. Acquiring a key it
// already holds is reentrant: it increments a local hold count instead of
// going back to Redis.
type RedisLock struct {
	client     *redis.Client
	keyPrefix  string
	owner      string
	defaultTTL time.Duration
	logger     Logger
	metrics    Metrics
	telemetry  *Telemetry

	mu   sync.Mutex
	held map[string]*heldLease
}

// NewRedisLock creates a Redis-backed Lock. keyPrefix namespaces all lock
// keys (e.g. "lockfleet") so multiple applications can share a Redis
// instance without colliding.
func NewRedisLock(client *redis.Client, keyPrefix string, logger Logger, metrics Metrics) *RedisLock {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}

	return &RedisLock{
		client:     client,
		keyPrefix:  keyPrefix,
		owner:      NewID(),
		defaultTTL: 30 * time.Second,
		logger:     logger,
		metrics:    metrics,
		held:       make(map[string]*heldLease),
	}
}

func (l *RedisLock) Name() BackendName { return BackendRedis }

// WithTelemetry attaches a Telemetry tracker so this backend's acquire and
// release activity is reflected in /lock-management/status. Optional: a
// RedisLock with no telemetry attached behaves exactly as before.
func (l *RedisLock) WithTelemetry(t *Telemetry) *RedisLock {
	l.telemetry = t
	return l
}

func (l *RedisLock) recordAcquireAttempt(ctx context.Context, success bool) {
	if l.telemetry != nil {
		l.telemetry.RecordAcquireAttempt(ctx, success)
	}
}

func (l *RedisLock) recordActiveLocksDelta(delta int64) {
	if l.telemetry != nil {
		l.telemetry.RecordActiveLocksDelta(delta)
	}
}

func (l *RedisLock) lockKey(key string) string {
	return fmt.Sprintf("%s:lock:%s", l.keyPrefix, key)
}

func (l *RedisLock) channelKey(key string) string {
	return fmt.Sprintf("%s:lock:released:%s", l.keyPrefix, key)
}

// Acquire blocks until the lock is free or ctx is canceled. Rather than
// poll, a failed attempt subscribes to the key's release channel and waits
// for either a wake-up notification or the TTL to plausibly have elapsed.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (*LockHandle, error) {
	if ttl <= 0 {
		ttl = l.defaultTTL
	}

	l.metrics.Increment(MetricAcquireAttempts, "backend", string(BackendRedis))
	start := time.Now()

	if handle, ok := l.reenter(key, ttl); ok {
		l.metrics.Increment(MetricAcquireSuccess, "backend", string(BackendRedis))
		l.recordAcquireAttempt(ctx, true)
		return handle, nil
	}

	sub := l.client.Subscribe(ctx, l.channelKey(key))
	defer sub.Close()

	for {
		ok, err := l.tryAcquireOnce(ctx, key, ttl)
		if err != nil {
			l.metrics.Increment(MetricAcquireFailure, "backend", string(BackendRedis), "reason", "backend_error")
			l.recordAcquireAttempt(ctx, false)
			return nil, err
		}
		if ok {
			l.metrics.Increment(MetricAcquireSuccess, "backend", string(BackendRedis))
			l.metrics.Timing(MetricAcquireLatency, time.Since(start), "backend", string(BackendRedis))
			l.recordAcquireAttempt(ctx, true)
			return l.startHolding(key, ttl), nil
		}

		select {
		case <-ctx.Done():
			l.metrics.Increment(MetricAcquireFailure, "backend", string(BackendRedis), "reason", "context_canceled")
			l.recordAcquireAttempt(ctx, false)
			return nil, ctx.Err()
		case <-sub.Channel():
			// Someone released the lock (or the TTL fired a keyspace event
			// we don't subscribe to); loop around and try again.
		case <-time.After(ttl):
			// Backstop in case the holder's watchdog died without anyone
			// publishing a release notification.
		}
	}
}

// TryAcquire attempts to acquire the lock with bounded retries and
// exponential backoff, never blocking indefinitely.
func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration, maxRetries int) (*LockHandle, error) {
	if ttl <= 0 {
		ttl = l.defaultTTL
	}

	l.metrics.Increment(MetricAcquireAttempts, "backend", string(BackendRedis))
	start := time.Now()

	if handle, ok := l.reenter(key, ttl); ok {
		l.metrics.Increment(MetricAcquireSuccess, "backend", string(BackendRedis))
		l.recordAcquireAttempt(ctx, true)
		return handle, nil
	}

	config := DefaultRetryConfig()
	config.MaxRetries = maxRetries

	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		ok, err := l.tryAcquireOnce(ctx, key, ttl)
		if err != nil {
			l.metrics.Increment(MetricAcquireFailure, "backend", string(BackendRedis), "reason", "backend_error")
			l.recordAcquireAttempt(ctx, false)
			return nil, err
		}
		if ok {
			l.metrics.Increment(MetricAcquireSuccess, "backend", string(BackendRedis))
			l.metrics.Timing(MetricAcquireLatency, time.Since(start), "backend", string(BackendRedis))
			l.recordAcquireAttempt(ctx, true)
			return l.startHolding(key, ttl), nil
		}

		select {
		case <-ctx.Done():
			l.metrics.Increment(MetricAcquireFailure, "backend", string(BackendRedis), "reason", "context_canceled")
			l.recordAcquireAttempt(ctx, false)
			return nil, ctx.Err()
		default:
		}

		if attempt < config.MaxRetries-1 {
			backoff := config.InitialBackoff * time.Duration(int64(1)<<uint(attempt))
			jitter := time.Duration(float64(backoff) * config.JitterPercent)
			time.Sleep(backoff + jitter)
		}
	}

	l.metrics.Increment(MetricAcquireFailure, "backend", string(BackendRedis), "reason", "wait_timeout")
	l.recordAcquireAttempt(ctx, false)
	return nil, WithContext(ErrLockWaitTimeout, map[string]interface{}{
		"key":         key,
		"max_retries": config.MaxRetries,
	})
}

// reenter checks whether this RedisLock already holds key and, if so,
// increments the local hold count instead of touching Redis.
func (l *RedisLock) reenter(key string, ttl time.Duration) (*LockHandle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lease, ok := l.held[key]
	if !ok || lease.lost {
		return nil, false
	}
	lease.count++
	return &LockHandle{Key: key, Backend: BackendRedis, AcquiredAt: lease.acquiredAt}, true
}

func (l *RedisLock) tryAcquireOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := l.owner
	res, err := acquireScript.Run(ctx, l.client, []string{l.lockKey(key)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, WithContext(ErrLockBackendError, map[string]interface{}{
			"key":   key,
			"cause": err.Error(),
		})
	}
	return res == 1, nil
}

// startHolding records the new lease locally and starts its watchdog.
func (l *RedisLock) startHolding(key string, ttl time.Duration) *LockHandle {
	l.mu.Lock()
	defer l.mu.Unlock()

	watchCtx, cancel := context.WithCancel(context.Background())
	now := Now()
	lease := &heldLease{
		token:          l.owner,
		count:          1,
		ttl:            ttl,
		acquiredAt:     now,
		cancelWatchdog: cancel,
	}
	l.held[key] = lease

	go l.watchdog(watchCtx, key, lease)

	l.metrics.Gauge(MetricActiveLocks, float64(len(l.held)), "backend", string(BackendRedis))
	l.recordActiveLocksDelta(1)
	return &LockHandle{Key: key, Backend: BackendRedis, AcquiredAt: now}
}

// watchdog renews the lease at roughly a third of its TTL for as long as
// the caller holds it, so a long-running critical section never loses its
// lock to expiry mid-operation.
func (l *RedisLock) watchdog(ctx context.Context, key string, lease *heldLease) {
	interval := lease.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := renewScript.Run(context.Background(), l.client, []string{l.lockKey(key)}, lease.token, lease.ttl.Milliseconds()).Int()
			if err != nil || res != 1 {
				l.mu.Lock()
				lease.lost = true
				l.mu.Unlock()
				l.logger.Warn("lock lost during watchdog renewal", "key", key, "error", err)
				l.metrics.Increment(MetricLockLost, "backend", string(BackendRedis))
				return
			}
			l.metrics.Increment(MetricWatchdogRenew, "backend", string(BackendRedis))
		}
	}
}

// Release gives up the lock. Reentrant holds are decremented locally first;
// the underlying Redis key is only deleted once the hold count reaches zero.
func (l *RedisLock) Release(ctx context.Context, handle *LockHandle) error {
	l.metrics.Increment(MetricReleaseAttempts, "backend", string(BackendRedis))

	l.mu.Lock()
	lease, ok := l.held[handle.Key]
	if !ok {
		l.mu.Unlock()
		l.metrics.Increment(MetricReleaseFailure, "backend", string(BackendRedis), "reason", "not_held")
		return WithContext(ErrLockNotHeldByCaller, map[string]interface{}{"key": handle.Key})
	}

	lease.count--
	if lease.count > 0 {
		l.mu.Unlock()
		l.metrics.Increment(MetricReleaseSuccess, "backend", string(BackendRedis))
		return nil
	}

	delete(l.held, handle.Key)
	lease.cancelWatchdog()
	wasLost := lease.lost
	l.mu.Unlock()

	l.metrics.Histogram(MetricHoldDuration, time.Since(lease.acquiredAt).Seconds(), "backend", string(BackendRedis))
	l.metrics.Gauge(MetricActiveLocks, float64(l.ActiveCount()), "backend", string(BackendRedis))
	l.recordActiveLocksDelta(-1)

	if wasLost {
		// Nothing to delete; the watchdog already observed someone else
		// holds the key (or it expired outright).
		l.metrics.Increment(MetricReleaseFailure, "backend", string(BackendRedis), "reason", "lock_lost")
		return nil
	}

	res, err := releaseScript.Run(ctx, l.client, []string{l.lockKey(handle.Key)}, lease.token).Int()
	if err != nil {
		l.metrics.Increment(MetricReleaseFailure, "backend", string(BackendRedis), "reason", "backend_error")
		return WithContext(ErrLockBackendError, map[string]interface{}{"key": handle.Key, "cause": err.Error()})
	}

	// Wake up anyone blocked in Acquire waiting on this key.
	l.client.Publish(ctx, l.channelKey(handle.Key), "released")

	l.metrics.Increment(MetricReleaseSuccess, "backend", string(BackendRedis))
	if res != 1 {
		// The key had already expired or been stolen; not an error for the
		// releasing caller, just means there was nothing left to clean up.
		return nil
	}
	return nil
}

// Renew extends a held lock's TTL directly, bypassing the watchdog. Useful
// when a caller knows it needs more time than the original TTL allows.
func (l *RedisLock) Renew(ctx context.Context, handle *LockHandle, ttl time.Duration) error {
	l.mu.Lock()
	lease, ok := l.held[handle.Key]
	if !ok {
		l.mu.Unlock()
		return WithContext(ErrLockNotHeldByCaller, map[string]interface{}{"key": handle.Key})
	}
	token := lease.token
	l.mu.Unlock()

	res, err := renewScript.Run(ctx, l.client, []string{l.lockKey(handle.Key)}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return WithContext(ErrLockBackendError, map[string]interface{}{"key": handle.Key, "cause": err.Error()})
	}
	if res != 1 {
		l.mu.Lock()
		lease.lost = true
		l.mu.Unlock()
		return WithContext(ErrLockLost, map[string]interface{}{"key": handle.Key})
	}
	return nil
}

// IsHeld reports whether this RedisLock's token is still the value stored
// at the lock key.
func (l *RedisLock) IsHeld(ctx context.Context, handle *LockHandle) (bool, error) {
	l.mu.Lock()
	lease, ok := l.held[handle.Key]
	if !ok {
		l.mu.Unlock()
		return false, nil
	}
	if lease.lost {
		l.mu.Unlock()
		return false, nil
	}
	token := lease.token
	l.mu.Unlock()

	val, err := l.client.Get(ctx, l.lockKey(handle.Key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, WithContext(ErrLockBackendError, map[string]interface{}{"key": handle.Key, "cause": err.Error()})
	}
	return val == token, nil
}

// ActiveCount reports how many locks this RedisLock currently holds, so a
// retiring backend can be drained down to zero rather than closed out from
// under live holders.
func (l *RedisLock) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// Close releases the underlying Redis client. It does not release any
// locks still held - callers must Release them first.
func (l *RedisLock) Close() error {
	return l.client.Close()
}
