// Package blobstore provides object storage for PDF sources and audio
// segments. Blobs are immutable once written and referenced by key.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob not found")

// Entry describes a stored blob.
type Entry struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// Store is a flat keyed blob store. Keys use '/'-separated paths
// (e.g. "pdfs/<job_id>/original.pdf", "audio/<job_id>/page_3.wav").
type Store interface {
	// Put writes data under key and returns the stored reference
	// (the key itself for every current implementation).
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the blob's bytes, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a blob. Returns false if it did not exist.
	Delete(ctx context.Context, key string) (bool, error)

	// List returns entries whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Entry, error)
}
