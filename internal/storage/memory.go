package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prn-tf/mvstories/internal/pkg/crypto"
)

// MemoryStore implements ObjectStore in process memory.
// This is suitable for tests and single-node development; nothing is persisted.
type MemoryStore struct {
	mu            sync.RWMutex
	objects       map[string]*memoryObject
	bucketCreated bool
}

// memoryObject represents a single stored object.
type memoryObject struct {
	data         []byte
	contentType  string
	etag         string
	lastModified time.Time
}

// NewMemoryStore creates an empty in-memory store whose bucket already exists.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:       make(map[string]*memoryObject),
		bucketCreated: true,
	}
}

// Put stores data under key.
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Make a copy of the value.
	valueCopy := make([]byte, len(data))
	copy(valueCopy, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = &memoryObject{
		data:         valueCopy,
		contentType:  contentType,
		etag:         crypto.ETag(valueCopy),
		lastModified: time.Now().UTC(),
	}
	return nil
}

// Get returns a copy of the object content.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	// Return a copy to prevent mutation.
	result := make([]byte, len(obj.data))
	copy(result, obj.data)
	return result, nil
}

// Stat returns object information.
func (s *MemoryStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		ContentType:  obj.contentType,
		LastModified: obj.lastModified,
	}, nil
}

// List returns objects under prefix ordered by key.
func (s *MemoryStore) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seenPrefixes := make(map[string]bool)
	result := make([]ObjectInfo, 0)
	for key, obj := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !recursive {
			rest := key[len(prefix):]
			if idx := strings.Index(rest, "/"); idx >= 0 {
				common := prefix + rest[:idx+1]
				if !seenPrefixes[common] {
					seenPrefixes[common] = true
					result = append(result, ObjectInfo{Key: common, IsPrefix: true})
				}
				continue
			}
		}
		result = append(result, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			ETag:         obj.etag,
			LastModified: obj.lastModified,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// Remove deletes key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

// BucketExists reports whether CreateBucket has been called (always true for NewMemoryStore).
func (s *MemoryStore) BucketExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bucketCreated, nil
}

// CreateBucket marks the bucket as created.
func (s *MemoryStore) CreateBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucketCreated = true
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Ensure MemoryStore implements ObjectStore
var _ ObjectStore = (*MemoryStore)(nil)
