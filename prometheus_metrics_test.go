package lockfleet

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewPrometheusMetrics tests creating Prometheus metrics
func TestNewPrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	if metrics == nil {
		t.Fatal("expected PrometheusMetrics, got nil")
	}

	if metrics.registry != registry {
		t.Error("registry not set correctly")
	}

	// Verify default metrics were registered
	if len(metrics.counters) == 0 {
		t.Error("expected counters to be registered")
	}
	if len(metrics.gauges) == 0 {
		t.Error("expected gauges to be registered")
	}
	if len(metrics.histograms) == 0 {
		t.Error("expected histograms to be registered")
	}
}

// TestNewPrometheusMetricsWithNilRegistry tests using default registry
func TestNewPrometheusMetricsWithNilRegistry(t *testing.T) {
	// Note: This will use the default Prometheus registry
	// We can't easily test this without polluting the global registry
	// So we skip this test or use a custom registry
	t.Skip("Skipping test that would pollute default registry")
}

// TestPrometheusMetricsIncrement tests counter increments
func TestPrometheusMetricsIncrement(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	// Test increment with labels (must match registered label count)
	metrics.Increment(MetricAcquireAttempts, "backend", "redis")
	metrics.Increment(MetricAcquireAttempts, "backend", "zookeeper")
	metrics.Increment(MetricAcquireSuccess, "backend", "redis")

	// Verify metrics were recorded (by checking registry)
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "acquire_attempts_total") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected acquire_attempts_total metric to be registered")
	}
}

// TestPrometheusMetricsGauge tests gauge operations
func TestPrometheusMetricsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	// Test gauge (MetricActiveLocks takes a "backend" label)
	metrics.Gauge(MetricActiveLocks, 5.5, "backend", "redis")
	metrics.Gauge(MetricActiveLocks, 2.3, "backend", "zookeeper")

	// Verify metrics were recorded
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "lock_active") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected active-lock gauge to be registered")
	}
}

// TestPrometheusMetricsHistogram tests histogram observations
func TestPrometheusMetricsHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	// Test histogram with labels (must match registered label count)
	metrics.Histogram(MetricBackendLatency, 100.0, "operation", "get", "backend", "filesystem")
	metrics.Histogram(MetricBackendLatency, 50.0, "operation", "get", "backend", "filesystem")
	metrics.Histogram(MetricBackendLatency, 150.0, "operation", "put", "backend", "s3")

	// Verify metrics were recorded
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "backend_operation_duration") {
			found = true
			break
		}
	}
	if !found {
		t.Error("expected backend operation duration histogram to be registered")
	}
}

// TestPrometheusMetricsTiming tests timing observations
func TestPrometheusMetricsTiming(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	// Test timing with labels (must match registered label count)
	metrics.Timing(MetricBackendLatency, 100*time.Millisecond, "operation", "get", "backend", "filesystem")
	metrics.Timing(MetricBackendLatency, 50*time.Millisecond, "operation", "get", "backend", "filesystem")
	metrics.Timing(MetricBackendLatency, 150*time.Millisecond, "operation", "put", "backend", "s3")

	// Verify histogram was updated (Timing should record to histogram)
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if strings.Contains(mf.GetName(), "backend_operation_duration") {
			found = true
			// Verify it's a histogram
			if mf.GetType() != 4 { // HISTOGRAM = 4
				t.Errorf("expected histogram type, got %v", mf.GetType())
			}
			break
		}
	}
	if !found {
		t.Error("expected backend operation duration metric")
	}
}

// TestPrometheusMetricsGetRegistry tests registry retrieval
func TestPrometheusMetricsGetRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	retrieved := metrics.GetRegistry()
	if retrieved != registry {
		t.Error("GetRegistry returned wrong registry")
	}
}

// TestPrometheusMetricsLabelExtraction tests label extraction
func TestPrometheusMetricsLabelExtraction(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	// Test with correct label count (must match registered labels)
	metrics.Increment(MetricAcquireAttempts, "backend", "redis")
	metrics.Increment(MetricAcquireFailure, "backend", "zookeeper", "reason", "timeout")

	// Dynamic counter with novel label shape
	metrics.Increment("lockfleet.custom.counter", "region", "us-west")
}

// TestPrometheusMetricsAllMetricTypes tests all registered metric types
func TestPrometheusMetricsAllMetricTypes(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	// Record various metrics
	metrics.Increment(MetricAcquireAttempts, "backend", "redis")
	metrics.Increment(MetricAcquireFailure, "backend", "zookeeper", "reason", "timeout")
	metrics.Increment(MetricReleaseSuccess, "backend", "redis")
	metrics.Increment(MetricTransactionSuccess, "operation", "transfer")
	metrics.Increment(MetricTransactionConflict, "operation", "withdraw")

	metrics.Gauge(MetricActiveLocks, 3.2, "backend", "redis")

	metrics.Histogram(MetricBackendLatency, 75.0, "operation", "get", "backend", "filesystem")
	metrics.Histogram(MetricAcquireLatency, 12.0, "backend", "zookeeper")

	// Gather all metrics
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	// Verify we have multiple metric families
	if len(metricFamilies) < 5 {
		t.Errorf("expected at least 5 metric families, got %d", len(metricFamilies))
	}
}

// TestPrometheusMetricsImplementsInterface verifies interface implementation
func TestPrometheusMetricsImplementsInterface(t *testing.T) {
	var _ Metrics = &PrometheusMetrics{}
}

// TestPrometheusMetricsConcurrency tests concurrent metric updates
func TestPrometheusMetricsConcurrency(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	// Run concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				metrics.Increment(MetricAcquireAttempts, "backend", "redis")
				metrics.Gauge(MetricActiveLocks, float64(j), "backend", "redis")
				metrics.Histogram(MetricBackendLatency, float64(j), "operation", "test", "backend", "memory")
			}
			done <- true
		}()
	}

	// Wait for all goroutines
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should complete without panic
}
