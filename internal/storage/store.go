package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lockfleet/lockfleet"
)

// Metric names for the storage layer's own request timing, independent of
// the lock core's own acquire/release metrics.
const (
	MetricGetDuration    = "lockfleet.storage.get.duration"
	MetricGetSuccess     = "lockfleet.storage.get.success"
	MetricGetError       = "lockfleet.storage.get.error"
	MetricPutDuration    = "lockfleet.storage.put.duration"
	MetricPutSuccess     = "lockfleet.storage.put.success"
	MetricPutError       = "lockfleet.storage.put.error"
	MetricDeleteDuration = "lockfleet.storage.delete.duration"
	MetricDeleteSuccess  = "lockfleet.storage.delete.success"
	MetricDeleteError    = "lockfleet.storage.delete.error"
)

// Store provides high-level JSON read/write operations on top of a Backend.
// It is domain-agnostic - the account and transaction rows it fronts are
// plain JSON-serializable structs.
type Store struct {
	backend Backend
	logger  lockfleet.Logger
	metrics lockfleet.Metrics
}

// NewStore creates a store with no-op logger and metrics.
func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		logger:  &lockfleet.NoOpLogger{},
		metrics: &lockfleet.NoOpMetrics{},
	}
}

// NewStoreWithObservability creates a store with a custom logger and
// metrics collector.
func NewStoreWithObservability(backend Backend, logger lockfleet.Logger, metrics lockfleet.Metrics) *Store {
	return &Store{
		backend: backend,
		logger:  logger,
		metrics: metrics,
	}
}

// SetLogger updates the logger for this store.
func (s *Store) SetLogger(logger lockfleet.Logger) {
	s.logger = logger
}

// SetMetrics updates the metrics collector for this store.
func (s *Store) SetMetrics(metrics lockfleet.Metrics) {
	s.metrics = metrics
}

// GetJSON fetches and unmarshals a JSON object from storage.
//
//	var account Account
//	err := store.GetJSON(ctx, "accounts/123.json", &account)
//	if lockfleet.IsNotFound(err) {
//	    // account doesn't exist
//	}
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) error {
	start := time.Now()
	data, err := s.backend.Get(ctx, key)
	s.metrics.Timing(MetricGetDuration, time.Since(start))

	if err != nil {
		s.metrics.Increment(MetricGetError)
		return err
	}

	s.metrics.Increment(MetricGetSuccess)
	return json.Unmarshal(data, dest)
}

// PutJSON marshals and stores a JSON object unconditionally. For
// conditional (optimistic) writes, use PutJSONWithETag; for a
// read-modify-write under exclusive ownership, acquire the row's lock
// first (see internal/banking's orchestrator).
func (s *Store) PutJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	start := time.Now()
	err = s.backend.Put(ctx, key, data)
	s.metrics.Timing(MetricPutDuration, time.Since(start))

	if err != nil {
		s.metrics.Increment(MetricPutError)
		return err
	}

	s.metrics.Increment(MetricPutSuccess)
	return nil
}

// PutJSONWithETag stores JSON with optimistic concurrency control: the
// write only succeeds if the backend's current ETag still matches
// expectedETag. Returns lockfleet.ErrConflict (via PutIfMatch) if another
// writer raced in first.
func (s *Store) PutJSONWithETag(ctx context.Context, key string, value interface{}, expectedETag string) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal: %w", err)
	}
	return s.backend.PutIfMatch(ctx, key, data, expectedETag)
}

// GetJSONWithETag fetches JSON and returns its ETag for a subsequent
// PutJSONWithETag call.
func (s *Store) GetJSONWithETag(ctx context.Context, key string, dest interface{}) (string, error) {
	data, etag, err := s.backend.GetWithETag(ctx, key)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return "", err
	}
	return etag, nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.backend.Delete(ctx, key)
	s.metrics.Timing(MetricDeleteDuration, time.Since(start))

	if err != nil {
		s.metrics.Increment(MetricDeleteError)
		return err
	}

	s.metrics.Increment(MetricDeleteSuccess)
	return nil
}

// Exists checks if a key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.backend.Exists(ctx, key)
}

// List returns all keys with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.List(ctx, prefix)
}

// ListPaginated processes keys in batches.
func (s *Store) ListPaginated(ctx context.Context, prefix string, handler func(keys []string) error) error {
	return s.backend.ListPaginated(ctx, prefix, handler)
}

// Backend returns the underlying backend, for advanced use.
func (s *Store) Backend() Backend {
	return s.backend
}

// Ping checks backend health.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases resources held by the store and backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
