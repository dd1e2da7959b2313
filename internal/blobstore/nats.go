package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
)

// NATSStore implements Store on a NATS JetStream object store bucket.
//
// Transient bucket errors are retried with backoff; ErrNotFound is
// surfaced immediately.
type NATSStore struct {
	bucket string
	store  nats.ObjectStore
}

const (
	putRetryAttempts = 3
	putRetryDelay    = 200 * time.Millisecond
)

// NewNATSStore creates or binds to the named object store bucket.
func NewNATSStore(js nats.JetStreamContext, bucket string) (*NATSStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Blob storage for the %s bucket.", bucket),
		Storage:     nats.FileStorage,
	})
	if err != nil {
		// The bucket may already exist; bind to it instead.
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}
	return &NATSStore{bucket: bucket, store: store}, nil
}

// Put writes data under key, retrying transient failures.
func (n *NATSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	meta := &nats.ObjectMeta{Name: key}
	if contentType != "" {
		meta.Headers = nats.Header{"Content-Type": []string{contentType}}
	}

	err := retry.Do(
		func() error {
			_, putErr := n.store.Put(meta, bytes.NewReader(data))
			return putErr
		},
		retry.Context(ctx),
		retry.Attempts(putRetryAttempts),
		retry.Delay(putRetryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", fmt.Errorf("put blob %q in bucket %q: %w", key, n.bucket, err)
	}
	return key, nil
}

// Get returns the blob's bytes.
func (n *NATSStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retry.Do(
		func() error {
			obj, getErr := n.store.Get(key)
			if getErr != nil {
				return getErr
			}
			defer obj.Close()
			data, getErr = io.ReadAll(obj)
			return getErr
		},
		retry.Context(ctx),
		retry.Attempts(putRetryAttempts),
		retry.Delay(putRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, nats.ErrObjectNotFound)
		}),
	)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %q from bucket %q: %w", key, n.bucket, err)
	}
	return data, nil
}

// Delete removes a blob. The object store happily re-deletes a deleted
// object, so existence is checked first to keep the returned bool honest.
func (n *NATSStore) Delete(ctx context.Context, key string) (bool, error) {
	info, err := n.store.GetInfo(key)
	if errors.Is(err, nats.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob %q in bucket %q: %w", key, n.bucket, err)
	}
	if info.Deleted {
		return false, nil
	}

	if err := n.store.Delete(key); err != nil {
		return false, fmt.Errorf("delete blob %q from bucket %q: %w", key, n.bucket, err)
	}
	return true, nil
}

// List returns entries under prefix.
func (n *NATSStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	infos, err := n.store.List()
	if errors.Is(err, nats.ErrNoObjectsFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list bucket %q: %w", n.bucket, err)
	}

	var entries []Entry
	for _, info := range infos {
		if info.Deleted || !strings.HasPrefix(info.Name, prefix) {
			continue
		}
		e := Entry{Key: info.Name, Size: int64(info.Size)}
		if info.Headers != nil {
			e.ContentType = info.Headers.Get("Content-Type")
		}
		entries = append(entries, e)
	}
	return entries, nil
}
