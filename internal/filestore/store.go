// Package filestore defines the object-storage interface snapshot uses.
//
// All providers (MinIO, S3-compatible servers, …) implement the Store
// interface. Callers depend only on this package — never on a specific
// provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package filestore

import (
	"context"
	"io"
)

// Store is the single interface all object storage providers must implement.
// Scoped to what table snapshots need: put, get, stat, list, and bucket
// bootstrap.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// EnsureBucket creates bucket if it does not already exist. Idempotent.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject writes size bytes from r to key inside bucket, replacing any
	// existing object. Pass size -1 when the length is unknown.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key inside bucket
	// without downloading its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// ListObjects returns the objects in bucket that match opts.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)
}
