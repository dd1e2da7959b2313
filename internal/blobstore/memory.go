package blobstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob

	// FailGets marks keys whose Get should fail, to simulate a flaky or
	// missing backend.
	failGets map[string]bool
}

type memoryBlob struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:    make(map[string]memoryBlob),
		failGets: make(map[string]bool),
	}
}

// FailGet makes subsequent Gets for key return ErrNotFound.
func (s *MemoryStore) FailGet(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGets[key] = true
}

// Put stores data under key.
func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[key] = memoryBlob{data: buf, contentType: contentType}
	return key, nil
}

// Get returns the blob's bytes.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failGets[key] {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	blob, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	buf := make([]byte, len(blob.data))
	copy(buf, blob.data)
	return buf, nil
}

// Delete removes a blob.
func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blobs[key]
	delete(s.blobs, key)
	return ok, nil
}

// List returns entries under prefix, sorted by key.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []Entry
	for key, blob := range s.blobs {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{Key: key, Size: int64(len(blob.data)), ContentType: blob.contentType})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}
