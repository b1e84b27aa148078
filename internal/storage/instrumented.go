package storage

import (
	"context"
	"errors"
	"time"

	"github.com/prn-tf/mvstories/internal/metrics"
)

// InstrumentedStore decorates an ObjectStore with Prometheus metrics.
type InstrumentedStore struct {
	next ObjectStore
}

// NewInstrumentedStore wraps next.
func NewInstrumentedStore(next ObjectStore) *InstrumentedStore {
	return &InstrumentedStore{next: next}
}

func observe(op string, start time.Time, err error) {
	status := metrics.Status(err)
	if errors.Is(err, ErrObjectNotFound) {
		status = "not_found"
	}
	metrics.StorageOperationsTotal.WithLabelValues(op, status).Inc()
	metrics.StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Put implements ObjectStore.
func (s *InstrumentedStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	err := s.next.Put(ctx, key, data, contentType)
	observe("put", start, err)
	return err
}

// Get implements ObjectStore.
func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.next.Get(ctx, key)
	observe("get", start, err)
	return data, err
}

// Stat implements ObjectStore.
func (s *InstrumentedStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	start := time.Now()
	info, err := s.next.Stat(ctx, key)
	observe("stat", start, err)
	return info, err
}

// List implements ObjectStore.
func (s *InstrumentedStore) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	start := time.Now()
	objects, err := s.next.List(ctx, prefix, recursive)
	observe("list", start, err)
	return objects, err
}

// Remove implements ObjectStore.
func (s *InstrumentedStore) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Remove(ctx, key)
	observe("remove", start, err)
	return err
}

// BucketExists implements ObjectStore.
func (s *InstrumentedStore) BucketExists(ctx context.Context) (bool, error) {
	start := time.Now()
	exists, err := s.next.BucketExists(ctx)
	observe("bucket_exists", start, err)
	return exists, err
}

// CreateBucket implements ObjectStore.
func (s *InstrumentedStore) CreateBucket(ctx context.Context) error {
	start := time.Now()
	err := s.next.CreateBucket(ctx)
	observe("create_bucket", start, err)
	return err
}

// Ensure InstrumentedStore implements ObjectStore
var _ ObjectStore = (*InstrumentedStore)(nil)
