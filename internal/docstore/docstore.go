// Package docstore provides a small document store keyed by (collection, key).
//
// Documents are JSON objects. Beyond plain get/put, the store exposes the two
// atomic primitives the rest of the system builds its consistency on:
// ConditionalUpdate (compare-and-set on a single field) and AtomicIncrement
// (numeric increment with a floor precondition). Both are single atomic
// operations in every implementation - multiple process instances may mutate
// the same document concurrently and correctness must hold at this layer, not
// via in-process locking.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Sentinel errors for the docstore package.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned by Insert when the key is already taken.
	ErrExists = errors.New("document already exists")
)

// Store is a keyed JSON document store with atomic conditional primitives.
type Store interface {
	// Get returns the raw JSON document, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (json.RawMessage, error)

	// Insert creates a new document. Returns ErrExists if the key is taken.
	Insert(ctx context.Context, collection, key string, doc any) error

	// Patch shallow-merges patch into an existing document.
	// Keys with nil values are removed. Returns ErrNotFound if absent.
	Patch(ctx context.Context, collection, key string, patch map[string]any) error

	// ConditionalUpdate applies patch only if the document's field currently
	// equals expect (a nil expect matches a missing field). The compare and
	// the patch are one atomic operation. Returns false if the precondition
	// did not hold, ErrNotFound if the document is absent.
	ConditionalUpdate(ctx context.Context, collection, key, field string, expect any, patch map[string]any) (bool, error)

	// AtomicIncrement adds delta to a numeric field only if the field's
	// current value is >= floor, checked at increment time. A missing field
	// counts as zero. Returns false (and performs no mutation) if the
	// precondition did not hold, ErrNotFound if the document is absent.
	AtomicIncrement(ctx context.Context, collection, key, field string, delta, floor int64) (bool, error)

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Decode unmarshals a document into v.
func Decode(raw json.RawMessage, v any) error {
	return json.Unmarshal(raw, v)
}

// GetAs fetches and decodes a document in one step.
func GetAs(ctx context.Context, s Store, collection, key string, v any) error {
	raw, err := s.Get(ctx, collection, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
