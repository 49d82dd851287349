// Package lockfleet provides distributed mutual exclusion over pluggable
// backends (Redis leases and ZooKeeper ephemeral-sequential nodes), plus the
// coordination and storage primitives a business process needs to run safely
// under a held lock.
//
// # Overview
//
// lockfleet is a lock core, not a key-value store. It provides:
//
//   - A single Lock interface implemented by a Redis-lease backend and a
//     ZooKeeper backend, so callers don't need to know which is active.
//   - A registry that holds the active backend behind a guarded cell and lets
//     operators hot-swap it without losing in-flight locks.
//   - A coordinator for acquiring multiple locks at once in a fixed order,
//     so no two callers can deadlock waiting on each other's locks.
//   - Telemetry (contention ratio, hold duration, throughput, derived
//     efficiency score) and health probes suitable for a status endpoint.
//
// # Quick Start
//
//	redisClient := redis.NewClient(lockfleet.RedisOptions())
//	backend := lockfleet.NewRedisLock(redisClient, "lockfleet", logger, metrics)
//
//	handle, err := backend.Acquire(ctx, "account:123", 10*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer backend.Release(ctx, handle)
//
// # Core Concepts
//
// Lock: the interface both backends implement - Acquire, TryAcquire, Release,
// Renew, and IsHeld. See lock.go.
//
// Registry: owns the currently active backend and performs a drain-then-swap
// when switching backends at runtime, so operations that started under the
// old backend finish against it. See registry.go.
//
// Coordinator: sorts a set of lock keys into a deterministic total order and
// acquires them one at a time in that order, releasing everything acquired
// so far if any acquisition fails. See coordinator.go.
//
// Storage: a transactional key-value collaborator (internal/storage) fronting
// account and transaction rows with per-row optimistic versioning, backed by
// the filesystem, S3, GCS, MinIO, or Postgres.
//
// Banking orchestrator: internal/banking composes the coordinator and storage
// transaction to run transfer/withdraw operations: validate, acquire every
// account lock involved in a fixed order, re-read balances under the lock,
// write a PENDING transaction row before mutating state, and finalize it
// COMPLETED or FAILED.
//
// # Distributed Locking
//
// Both backends implement reentrant, lease-based ownership: Acquire blocks
// (with context cancellation) until the lock is free or ctx expires;
// TryAcquire retries with backoff up to a bounded wait. The Redis backend
// runs a watchdog goroutine that renews the lease while held and a pub/sub
// channel that wakes blocked waiters as soon as the lock is released, rather
// than making them poll. The ZooKeeper backend creates an ephemeral
// sequential child node and watches its immediate predecessor; ownership is
// "lowest sequence number among live children."
//
// # Multi-Lock Acquisition
//
// Any business operation that touches more than one resource (a transfer
// between two accounts) must acquire every lock it needs before doing any
// work, in a fixed lexicographic order of the lock keys. The coordinator
// enforces this so two operations that both need locks A and B can never
// each hold one and wait on the other.
//
// # Observability
//
// Metrics (Prometheus):
//
//	metrics := lockfleet.NewPrometheusMetrics(prometheus.NewRegistry())
//
// Logging (Zap structured logging):
//
//	logger, _ := lockfleet.NewProductionZapLogger()
//
// # Critical Gotchas
//
//  1. Lock loss while held: a renewed lease can still expire if the watchdog
//     goroutine is starved or the backend partitions. Callers that hold a
//     lock across a long-running operation should check IsHeld before
//     committing irreversible side effects; see ErrLockLost.
//  2. Backend switches never revoke in-flight locks: a caller that acquired
//     under the old backend keeps operating against it until release.
//  3. Multi-lock acquisition without the coordinator's ordering guarantee
//     can deadlock; always go through Coordinator.AcquireAll for more than
//     one key.
package lockfleet
