// Package storage is the object store layer: a thin adapter over an S3-compatible
// bucket plus the naming scheme that maps logical objects to storage keys.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrObjectNotFound is returned by Get and Stat when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object or, for non-recursive listings, a common prefix.
type ObjectInfo struct {
	// Key is the full object key, or the prefix (ending in "/") when IsPrefix is set.
	Key string `json:"key"`

	// Size is the object size in bytes.
	Size int64 `json:"size"`

	// ETag is the entity tag reported by the store.
	ETag string `json:"etag,omitempty"`

	// ContentType is the stored content type (only populated by Stat).
	ContentType string `json:"content_type,omitempty"`

	// LastModified is the modification time reported by the store.
	LastModified time.Time `json:"last_modified"`

	// IsPrefix marks a common prefix returned by a non-recursive listing.
	IsPrefix bool `json:"is_prefix,omitempty"`
}

// ObjectStore defines the operations the repository needs from the bucket.
// Implementations are bound to a single bucket at construction time and are
// safe for concurrent use.
type ObjectStore interface {
	// Put stores data under key, replacing any existing object.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Full object key
	//   - data: Object content
	//   - contentType: MIME type recorded with the object
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the full content of key.
	//
	// Returns:
	//   - []byte: Object content
	//   - err: ErrObjectNotFound if the key doesn't exist, or a storage failure
	Get(ctx context.Context, key string) ([]byte, error)

	// Stat returns object information without reading the content.
	//
	// Returns:
	//   - *ObjectInfo: Object information
	//   - err: ErrObjectNotFound if the key doesn't exist, or a storage failure
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns the objects whose key starts with prefix, ordered by key.
	// When recursive is false, keys below the next "/" are folded into
	// common prefixes (IsPrefix set).
	List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error)

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// BucketExists reports whether the configured bucket exists.
	BucketExists(ctx context.Context) (bool, error)

	// CreateBucket creates the configured bucket.
	CreateBucket(ctx context.Context) error
}

// EnsureBucket creates the bucket if it does not exist yet.
// Returns true if the bucket was created.
func EnsureBucket(ctx context.Context, store ObjectStore) (bool, error) {
	exists, err := store.BucketExists(ctx)
	if err != nil {
		return false, fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := store.CreateBucket(ctx); err != nil {
		return false, fmt.Errorf("create bucket: %w", err)
	}
	return true, nil
}
