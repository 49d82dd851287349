// Package storage implements the persistence collaborator described by the
// lock core's data model: a transactional key-value store with per-row
// optimistic versioning, fronting account and transaction rows.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/lockfleet/lockfleet"
)

// Filesystem defaults shared by FilesystemBackend.
const (
	DefaultDirPermissions    = 0755
	DefaultFilePermissions   = 0644
	DefaultListPaginatedSize = 100
)

// ErrUnauthorized is returned when a backend denies access to a row (e.g. a
// filesystem permission error translated from the OS).
var ErrUnauthorized = errors.New("unauthorized access to storage row")

// Backend defines the interface for different storage implementations.
// This lets the account/transaction store work against S3, GCS, Postgres,
// or the local filesystem without the rest of the package caring which.
type Backend interface {
	// Object operations
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Conditional operations (optimistic concurrency on the row version)
	// Returns the new ETag (version tag) after a successful put.
	PutIfMatch(ctx context.Context, key string, data []byte, expectedETag string) (string, error)
	GetWithETag(ctx context.Context, key string) (data []byte, etag string, err error)

	// Append adds data to an append-only key, e.g. a transaction journal.
	Append(ctx context.Context, key string, data []byte) error

	// Streaming operations for large objects.
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)
	PutStream(ctx context.Context, key string, reader io.Reader, size int64) error

	// List operations
	List(ctx context.Context, prefix string) ([]string, error)
	ListPaginated(ctx context.Context, prefix string, handler func(keys []string) error) error

	// Health check
	Ping(ctx context.Context) error

	// Resource cleanup
	Close() error
}

// BackendConfig holds configuration for any backend.
type BackendConfig struct {
	Type       string            // "s3", "minio", "gcs", "postgres", "filesystem"
	Bucket     string            // S3/GCS bucket, or Postgres table, or base directory
	Region     string            // AWS region (S3 only)
	Endpoint   string            // Custom endpoint (S3-compatible services)
	PathPrefix string            // Optional prefix for all keys
	Options    map[string]string // Backend-specific options
}

// Validate checks if the BackendConfig is valid.
func (c BackendConfig) Validate() error {
	if c.Type == "" {
		return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"reason": "backend type is required",
		})
	}
	if c.Bucket == "" {
		return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "Bucket",
			"reason": "bucket/table/base path is required",
		})
	}

	switch c.Type {
	case "s3", "minio":
		if c.Region == "" && c.Endpoint == "" {
			return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
				"field":  "Region/Endpoint",
				"reason": "S3 backend requires either Region or Endpoint",
			})
		}
	case "gcs", "postgres", "filesystem":
		// No additional validation needed
	default:
		return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "Type",
			"value":  c.Type,
			"reason": "unknown backend type",
		})
	}

	return nil
}
