package lockfleet

import "time"

// Metrics provides observability for lock acquisition, release, and the
// business operations that run under a held lock.
type Metrics interface {
	// Increment increases a counter by 1
	Increment(name string, tags ...string)

	// Gauge sets an absolute value
	Gauge(name string, value float64, tags ...string)

	// Histogram records a value distribution (latency, hold duration, etc)
	Histogram(name string, value float64, tags ...string)

	// Timing records a duration
	Timing(name string, duration time.Duration, tags ...string)
}

// NoOpMetrics is a metrics collector that does nothing
type NoOpMetrics struct{}

func (m *NoOpMetrics) Increment(name string, tags ...string)                     {}
func (m *NoOpMetrics) Gauge(name string, value float64, tags ...string)          {}
func (m *NoOpMetrics) Histogram(name string, value float64, tags ...string)      {}
func (m *NoOpMetrics) Timing(name string, duration time.Duration, tags ...string) {}

// InMemoryMetrics stores metrics in memory for testing
type InMemoryMetrics struct {
	Counters   map[string]int
	Gauges     map[string]float64
	Histograms map[string][]float64
	Timings    map[string][]time.Duration
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		Counters:   make(map[string]int),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string][]float64),
		Timings:    make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Increment(name string, tags ...string) {
	m.Counters[name]++
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...string) {
	m.Gauges[name] = value
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...string) {
	m.Histograms[name] = append(m.Histograms[name], value)
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...string) {
	m.Timings[name] = append(m.Timings[name], duration)
}

// Metric names for lock acquisition/release and the transactions that run
// under a held lock. Tags carry the backend name and, where relevant, a
// failure reason.
const (
	MetricAcquireAttempts = "lockfleet.acquire.attempts"
	MetricAcquireSuccess  = "lockfleet.acquire.success"
	MetricAcquireFailure  = "lockfleet.acquire.failure"
	MetricAcquireLatency  = "lockfleet.acquire.latency"

	MetricReleaseAttempts = "lockfleet.release.attempts"
	MetricReleaseSuccess  = "lockfleet.release.success"
	MetricReleaseFailure  = "lockfleet.release.failure"

	MetricHoldDuration  = "lockfleet.lock.hold_duration"
	MetricActiveLocks   = "lockfleet.lock.active"
	MetricLockLost      = "lockfleet.lock.lost"
	MetricWatchdogRenew = "lockfleet.lock.watchdog_renew"

	MetricBackendSwitch    = "lockfleet.backend.switch"
	MetricBackendSwitchErr = "lockfleet.backend.switch_error"
	MetricBackendOps       = "lockfleet.backend.ops"
	MetricBackendErrors    = "lockfleet.backend.errors"
	MetricBackendLatency   = "lockfleet.backend.latency"

	MetricTransactionSuccess  = "lockfleet.transaction.success"
	MetricTransactionFailed   = "lockfleet.transaction.failed"
	MetricTransactionConflict = "lockfleet.transaction.conflict"
	MetricTransactionDuration = "lockfleet.transaction.duration"

	MetricHealthCheck      = "lockfleet.health.check"
	MetricHealthCheckError = "lockfleet.health.check_error"

	// Lock management/admin operations (see lock_manager.go)
	MetricLockActive       = "lockfleet.lock.manager.active"
	MetricLockOrphaned     = "lockfleet.lock.manager.orphaned"
	MetricLockCleanup      = "lockfleet.lock.manager.cleanup"
	MetricLockForceRelease = "lockfleet.lock.manager.force_release"

	// Fleet-wide cumulative counters (see counter.go)
	MetricCounterIncrement     = "lockfleet.counter.increment"
	MetricCounterSet           = "lockfleet.counter.set"
	MetricCounterDelete        = "lockfleet.counter.delete"
	MetricCounterError         = "lockfleet.counter.error"
	MetricCounterRepair        = "lockfleet.counter.repair"
	MetricCounterAuditTotal    = "lockfleet.counter.audit.total"
	MetricCounterAuditInvalid  = "lockfleet.counter.audit.invalid"
	MetricCounterAuditNegative = "lockfleet.counter.audit.negative"
)

// Production integrations:
//
// For Prometheus (github.com/prometheus/client_golang): see prometheus_metrics.go,
// which wraps promauto counter/gauge/histogram vectors behind this interface.
//
// For Datadog (github.com/DataDog/datadog-go/statsd):
//   type DatadogMetrics struct { client *statsd.Client }
//   func (m *DatadogMetrics) Increment(name string, tags ...string) {
//       m.client.Incr(name, tags, 1)
//   }
