package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and single-shot tooling.
// All operations are guarded by one mutex, so the conditional primitives
// have the same atomicity guarantees as the SQLite implementation.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]map[string]any // collection -> key -> doc
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]map[string]any),
	}
}

// normalize round-trips v through JSON so stored values use the same types
// (float64, string, bool, map[string]any) the SQLite backend would produce.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeDoc(doc any) (map[string]any, error) {
	norm, err := normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	m, ok := norm.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document must be a JSON object, got %T", norm)
	}
	return m, nil
}

// mergePatch applies an RFC 7386 style merge: objects merge recursively,
// nil values delete keys, everything else replaces.
func mergePatch(target, patch map[string]any) {
	for k, v := range patch {
		if v == nil {
			delete(target, k)
			continue
		}
		if patchObj, ok := v.(map[string]any); ok {
			if existing, ok := target[k].(map[string]any); ok {
				mergePatch(existing, patchObj)
				continue
			}
		}
		target[k] = v
	}
}

// Get returns the document as raw JSON.
func (s *MemoryStore) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return data, nil
}

// Insert creates a new document, failing if the key exists.
func (s *MemoryStore) Insert(ctx context.Context, collection, key string, doc any) error {
	m, err := normalizeDoc(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[collection][key]; ok {
		return fmt.Errorf("%w: %s/%s", ErrExists, collection, key)
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]map[string]any)
	}
	s.docs[collection][key] = m
	return nil
}

// Patch merges patch into an existing document.
func (s *MemoryStore) Patch(ctx context.Context, collection, key string, patch map[string]any) error {
	normPatch, err := normalizeDoc(patch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][key]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	mergePatch(doc, normPatch)
	return nil
}

// ConditionalUpdate applies patch only when field currently equals expect.
func (s *MemoryStore) ConditionalUpdate(ctx context.Context, collection, key, field string, expect any, patch map[string]any) (bool, error) {
	normPatch, err := normalizeDoc(patch)
	if err != nil {
		return false, err
	}
	normExpect, err := normalize(expect)
	if err != nil {
		return false, fmt.Errorf("marshal expect: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][key]
	if !ok {
		return false, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	current := doc[field]
	if !reflect.DeepEqual(current, normExpect) {
		return false, nil
	}
	mergePatch(doc, normPatch)
	return true, nil
}

// AtomicIncrement adds delta to a numeric field when its value is >= floor.
func (s *MemoryStore) AtomicIncrement(ctx context.Context, collection, key, field string, delta, floor int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[collection][key]
	if !ok {
		return false, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	var current int64
	if v, ok := doc[field].(float64); ok {
		current = int64(v)
	}
	if current < floor {
		return false, nil
	}
	doc[field] = float64(current + delta)
	return true, nil
}

// Delete removes a document if present.
func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.docs[collection], key)
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
