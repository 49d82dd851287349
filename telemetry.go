package lockfleet

import (
	"context"
	"sync/atomic"
	"time"
)

// EfficiencyGrade buckets a derived efficiency score into a letter grade
// suitable for a status endpoint.
type EfficiencyGrade string

const (
	EfficiencyExcellent EfficiencyGrade = "EXCELLENT"
	EfficiencyGood      EfficiencyGrade = "GOOD"
	EfficiencyFair      EfficiencyGrade = "FAIR"
	EfficiencyPoor      EfficiencyGrade = "POOR"
	EfficiencyCritical  EfficiencyGrade = "CRITICAL"
)

// GradeEfficiency scores acquireSuccessRate and transactionSuccessRate
// (each a fraction in [0, 1]) into a weighted composite and a letter
// grade: acquisitions matter, but a completed business transaction
// matters more, since a lock held for nothing is wasted work.
func GradeEfficiency(acquireSuccessRate, transactionSuccessRate float64) (float64, EfficiencyGrade) {
	score := 0.4*acquireSuccessRate*100 + 0.6*transactionSuccessRate*100
	switch {
	case score >= 95:
		return score, EfficiencyExcellent
	case score >= 85:
		return score, EfficiencyGood
	case score >= 70:
		return score, EfficiencyFair
	case score >= 50:
		return score, EfficiencyPoor
	default:
		return score, EfficiencyCritical
	}
}

// FleetCounter is a cumulative, monotonically increasing count of
// acquisitions that must be visible fleet-wide (across every process
// sharing a lock key space) for contention_ratio to mean anything beyond
// this one process. When Redis is the active backend, FleetCounter should
// be backed by the Redis-resident Counter (see counter.go) so every
// process shares the same value; when ZooKeeper is active there is no
// guaranteed shared counter client, so it falls back to an in-process
// atomic, which only reflects this process's view.
type FleetCounter interface {
	Increment(ctx context.Context) (int64, error)
	Value(ctx context.Context) (int64, error)
}

// processLocalCounter is the ZooKeeper-active fallback: a per-process
// atomic that does not require any external dependency.
type processLocalCounter struct {
	value int64
}

// NewProcessLocalCounter returns a FleetCounter backed only by this
// process's memory. It is a meaningful contention_ratio denominator only
// when this process is the sole contender for the key space.
func NewProcessLocalCounter() FleetCounter {
	return &processLocalCounter{}
}

func (c *processLocalCounter) Increment(ctx context.Context) (int64, error) {
	return atomic.AddInt64(&c.value, 1), nil
}

func (c *processLocalCounter) Value(ctx context.Context) (int64, error) {
	return atomic.LoadInt64(&c.value), nil
}

// redisFleetCounter adapts the Redis-backed Counter to FleetCounter.
type redisFleetCounter struct {
	counter *Counter
}

// NewRedisFleetCounter wraps an existing Redis Counter (see counter.go) so
// it can serve as the cluster-wide acquisition count.
func NewRedisFleetCounter(counter *Counter) FleetCounter {
	return &redisFleetCounter{counter: counter}
}

func (c *redisFleetCounter) Increment(ctx context.Context) (int64, error) {
	return c.counter.Increment(ctx)
}

func (c *redisFleetCounter) Value(ctx context.Context) (int64, error) {
	return c.counter.Get(ctx)
}

// TelemetrySnapshot is the point-in-time set of derived figures shown on
// the lock-management status endpoint.
type TelemetrySnapshot struct {
	ActiveLocks            int64
	CumulativeAcquired     int64
	ContentionRatio        float64
	CompletedOps           int64
	Uptime                 time.Duration
	Throughput             float64
	AcquireSuccessRate     float64
	TransactionSuccessRate float64
	EfficiencyScore        float64
	EfficiencyGrade        EfficiencyGrade
}

// Telemetry composes the raw counters a process tracks into the derived
// figures spec'd for /lock-management/status: contention_ratio,
// throughput, and the weighted efficiency grade.
type Telemetry struct {
	fleetCounter FleetCounter
	startedAt    time.Time

	activeLocks         int64
	completedOps        int64
	acquireAttempts     int64
	acquireSuccesses    int64
	transactionAttempts int64
	transactionSuccess  int64
}

// NewTelemetry creates a Telemetry tracker. startedAt should be the
// process's start time, used to compute uptime-based throughput.
func NewTelemetry(fleetCounter FleetCounter, startedAt time.Time) *Telemetry {
	return &Telemetry{fleetCounter: fleetCounter, startedAt: startedAt}
}

func (t *Telemetry) RecordAcquireAttempt(ctx context.Context, success bool) {
	atomic.AddInt64(&t.acquireAttempts, 1)
	if success {
		atomic.AddInt64(&t.acquireSuccesses, 1)
		t.fleetCounter.Increment(ctx)
	}
}

func (t *Telemetry) RecordActiveLocksDelta(delta int64) {
	atomic.AddInt64(&t.activeLocks, delta)
}

func (t *Telemetry) RecordTransaction(success bool) {
	atomic.AddInt64(&t.transactionAttempts, 1)
	if success {
		atomic.AddInt64(&t.transactionSuccess, 1)
		atomic.AddInt64(&t.completedOps, 1)
	}
}

// Snapshot computes the current derived figures. cumulative_acquired comes
// from the fleet counter (Redis-shared or process-local, per which
// backend is active), so contention_ratio reflects the whole fleet when
// Redis is in play.
func (t *Telemetry) Snapshot(ctx context.Context) (TelemetrySnapshot, error) {
	cumulative, err := t.fleetCounter.Value(ctx)
	if err != nil {
		return TelemetrySnapshot{}, err
	}

	active := atomic.LoadInt64(&t.activeLocks)
	completed := atomic.LoadInt64(&t.completedOps)
	uptime := time.Since(t.startedAt)

	var contention float64
	if cumulative > 0 {
		contention = float64(active) / float64(cumulative)
	}

	var throughput float64
	if uptime.Seconds() > 0 {
		throughput = float64(completed) / uptime.Seconds()
	}

	acquireRate := rateOf(atomic.LoadInt64(&t.acquireSuccesses), atomic.LoadInt64(&t.acquireAttempts))
	txRate := rateOf(atomic.LoadInt64(&t.transactionSuccess), atomic.LoadInt64(&t.transactionAttempts))
	score, grade := GradeEfficiency(acquireRate, txRate)

	return TelemetrySnapshot{
		ActiveLocks:            active,
		CumulativeAcquired:     cumulative,
		ContentionRatio:        contention,
		CompletedOps:           completed,
		Uptime:                 uptime,
		Throughput:             throughput,
		AcquireSuccessRate:     acquireRate,
		TransactionSuccessRate: txRate,
		EfficiencyScore:        score,
		EfficiencyGrade:        grade,
	}, nil
}

func rateOf(successes, attempts int64) float64 {
	if attempts == 0 {
		return 1 // no attempts yet: treat as fully healthy, not zero
	}
	return float64(successes) / float64(attempts)
}
