package lockfleet

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements the Metrics interface using Prometheus
type PrometheusMetrics struct {
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
// If registry is nil, uses the default Prometheus registry
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer.(*prometheus.Registry)
	}

	pm := &PrometheusMetrics{
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		registry:   registry,
	}

	pm.registerDefaultMetrics()
	return pm
}

// registerDefaultMetrics registers the standard lock, backend, and
// transaction instruments named in the acquire/release/transaction path.
func (p *PrometheusMetrics) registerDefaultMetrics() {
	// Acquire/release counts
	p.counters[MetricAcquireAttempts] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "acquire_attempts_total",
			Help:      "Total number of lock acquire attempts",
		},
		[]string{"backend"},
	)

	p.counters[MetricAcquireSuccess] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "acquire_success_total",
			Help:      "Total number of successful lock acquisitions",
		},
		[]string{"backend"},
	)

	p.counters[MetricAcquireFailure] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "acquire_failure_total",
			Help:      "Total number of failed lock acquisitions",
		},
		[]string{"backend", "reason"},
	)

	p.counters[MetricReleaseAttempts] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "release_attempts_total",
			Help:      "Total number of lock release attempts",
		},
		[]string{"backend"},
	)

	p.counters[MetricReleaseSuccess] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "release_success_total",
			Help:      "Total number of successful lock releases",
		},
		[]string{"backend"},
	)

	p.counters[MetricReleaseFailure] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "release_failure_total",
			Help:      "Total number of failed lock releases",
		},
		[]string{"backend", "reason"},
	)

	p.counters[MetricLockLost] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "lost_total",
			Help:      "Total number of locks lost while held (ownership voided by the backend)",
		},
		[]string{"backend"},
	)

	p.counters[MetricWatchdogRenew] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "watchdog_renew_total",
			Help:      "Total number of lease watchdog renewals",
		},
		[]string{"backend"},
	)

	p.counters[MetricBackendSwitch] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "backend",
			Name:      "switch_total",
			Help:      "Total number of active-backend switches",
		},
		[]string{"from", "to"},
	)

	p.counters[MetricBackendSwitchErr] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "backend",
			Name:      "switch_error_total",
			Help:      "Total number of failed active-backend switches",
		},
		[]string{"from", "to"},
	)

	p.counters[MetricTransactionSuccess] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "transaction",
			Name:      "success_total",
			Help:      "Total number of business transactions completed successfully",
		},
		[]string{"operation"},
	)

	p.counters[MetricTransactionFailed] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "transaction",
			Name:      "failed_total",
			Help:      "Total number of business transactions that failed",
		},
		[]string{"operation", "reason"},
	)

	p.counters[MetricTransactionConflict] = promauto.With(p.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lockfleet",
			Subsystem: "transaction",
			Name:      "conflict_total",
			Help:      "Total number of optimistic concurrency conflicts on transaction commit",
		},
		[]string{"operation"},
	)

	// Timing histograms
	p.histograms[MetricAcquireLatency] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "acquire_latency_seconds",
			Help:      "Time spent acquiring a lock, including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	p.histograms[MetricHoldDuration] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "hold_duration_seconds",
			Help:      "Time a lock was held between acquire and release",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	p.histograms[MetricBackendLatency] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lockfleet",
			Subsystem: "backend",
			Name:      "operation_duration_seconds",
			Help:      "Backend operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "backend"},
	)

	p.histograms[MetricTransactionDuration] = promauto.With(p.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lockfleet",
			Subsystem: "transaction",
			Name:      "duration_seconds",
			Help:      "Business transaction duration, lock acquisition through commit",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// Gauges
	p.gauges[MetricActiveLocks] = promauto.With(p.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lockfleet",
			Subsystem: "lock",
			Name:      "active",
			Help:      "Current number of held locks",
		},
		[]string{"backend"},
	)
}

// Increment increments a Prometheus counter
func (p *PrometheusMetrics) Increment(name string, tags ...string) {
	counter, ok := p.counters[name]
	if !ok {
		// Create dynamic counter if it doesn't exist
		counter = promauto.With(p.registry).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lockfleet",
				Name:      strings.ReplaceAll(name, ".", "_"),
				Help:      "Dynamic counter: " + name,
			},
			p.extractLabels(tags),
		)
		p.counters[name] = counter
	}

	labels := p.extractLabelValues(tags)
	counter.With(labels).Inc()
}

// Gauge sets a Prometheus gauge value
func (p *PrometheusMetrics) Gauge(name string, value float64, tags ...string) {
	gauge, ok := p.gauges[name]
	if !ok {
		// Create dynamic gauge if it doesn't exist
		gauge = promauto.With(p.registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "lockfleet",
				Name:      strings.ReplaceAll(name, ".", "_"),
				Help:      "Dynamic gauge: " + name,
			},
			p.extractLabels(tags),
		)
		p.gauges[name] = gauge
	}

	labels := p.extractLabelValues(tags)
	gauge.With(labels).Set(value)
}

// Histogram records a value in a Prometheus histogram
func (p *PrometheusMetrics) Histogram(name string, value float64, tags ...string) {
	histogram, ok := p.histograms[name]
	if !ok {
		// Create dynamic histogram if it doesn't exist
		histogram = promauto.With(p.registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lockfleet",
				Name:      strings.ReplaceAll(name, ".", "_"),
				Help:      "Dynamic histogram: " + name,
				Buckets:   prometheus.DefBuckets,
			},
			p.extractLabels(tags),
		)
		p.histograms[name] = histogram
	}

	labels := p.extractLabelValues(tags)
	histogram.With(labels).Observe(value)
}

// Timing records a duration in a Prometheus histogram
func (p *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...string) {
	p.Histogram(name, duration.Seconds(), tags...)
}

// extractLabels extracts label names from tags (every even index)
func (p *PrometheusMetrics) extractLabels(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}

	labels := make([]string, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		if i < len(tags) {
			labels = append(labels, tags[i])
		}
	}
	return labels
}

// extractLabelValues creates a label map from tags (key-value pairs)
func (p *PrometheusMetrics) extractLabelValues(tags []string) prometheus.Labels {
	if len(tags) == 0 {
		return prometheus.Labels{}
	}

	labels := make(prometheus.Labels)
	for i := 0; i < len(tags)-1; i += 2 {
		labels[tags[i]] = tags[i+1]
	}
	return labels
}

// GetRegistry returns the underlying Prometheus registry
func (p *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return p.registry
}
