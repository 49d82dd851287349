package lockfleet

import (
	"context"
	"sync"
	"time"
)

// Registry holds the currently active Lock backend behind a guarded cell
// and lets operators switch backends at runtime without losing locks that
// were acquired under the outgoing one. A switch never revokes in-flight
// handles: callers that acquired under the old backend keep releasing
// against it until they're done, while new Acquire calls go to the new
// backend as soon as the switch completes.
type Registry struct {
	mu      sync.RWMutex
	active  Lock
	drained map[BackendName]Lock // retired backends still serving in-flight callers
	logger  Logger
	metrics Metrics
}

// NewRegistry creates a Registry with initial as the active backend.
func NewRegistry(initial Lock, logger Logger, metrics Metrics) *Registry {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &Registry{
		active:  initial,
		drained: make(map[BackendName]Lock),
		logger:  logger,
		metrics: metrics,
	}
}

// Active returns the currently active backend. Callers should fetch it
// once per operation rather than holding onto it, so a later Switch is
// picked up by their next call.
func (r *Registry) Active() Lock {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Switch installs next as the active backend. The outgoing backend is not
// closed immediately: it's kept in the retired set (reachable via Backend)
// so any handle still holding a lock on it can be released correctly, until
// Drain closes it once no handles remain.
func (r *Registry) Switch(ctx context.Context, next Lock) error {
	if next == nil {
		return WithContext(ErrUnsupportedBackend, map[string]interface{}{"reason": "nil backend"})
	}

	r.mu.Lock()
	old := r.active
	r.active = next
	if old != nil {
		r.drained[old.Name()] = old
	}
	r.mu.Unlock()

	r.metrics.Increment(MetricBackendSwitch, "to", string(next.Name()))
	r.logger.Info("backend switched", "to", string(next.Name()))
	return nil
}

// Drain waits up to timeout for a retired backend's ActiveCount to reach
// zero before closing it and removing it from the retired set. It returns
// ErrSwitchIncomplete without closing the backend if any handles are still
// held when the timeout elapses, so outstanding holders keep working and a
// later Drain call can try again.
func (r *Registry) Drain(ctx context.Context, name BackendName, timeout time.Duration) error {
	r.mu.RLock()
	backend, ok := r.drained[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if backend.ActiveCount() == 0 {
			break
		}
		if !time.Now().Before(deadline) {
			r.metrics.Increment(MetricBackendSwitchErr, "backend", string(name))
			return WithContext(ErrSwitchIncomplete, map[string]interface{}{
				"backend": string(name),
				"reason":  "still held",
				"active":  backend.ActiveCount(),
			})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	r.mu.Lock()
	delete(r.drained, name)
	r.mu.Unlock()

	if err := backend.Close(); err != nil {
		r.metrics.Increment(MetricBackendSwitchErr, "backend", string(name))
		return WithContext(ErrSwitchIncomplete, map[string]interface{}{"backend": string(name), "cause": err.Error()})
	}
	r.logger.Info("backend drained and closed", "backend", string(name))
	return nil
}

// Backend looks up a specific backend by name among the active one and any
// still-draining retired ones, so a caller releasing a handle acquired
// before a switch can find the right implementation to release it against.
func (r *Registry) Backend(name BackendName) (Lock, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active != nil && r.active.Name() == name {
		return r.active, true
	}
	if backend, ok := r.drained[name]; ok {
		return backend, true
	}
	return nil, false
}

// Acquire is a convenience pass-through to the active backend.
func (r *Registry) Acquire(ctx context.Context, key string, ttl time.Duration) (*LockHandle, error) {
	return r.Active().Acquire(ctx, key, ttl)
}

// Release routes to whichever backend granted handle, even if the registry
// has since switched away from it.
func (r *Registry) Release(ctx context.Context, handle *LockHandle) error {
	backend, ok := r.Backend(handle.Backend)
	if !ok {
		return WithContext(ErrUnsupportedBackend, map[string]interface{}{"backend": string(handle.Backend)})
	}
	return backend.Release(ctx, handle)
}
