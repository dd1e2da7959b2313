package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists documents in a single SQLite database.
//
// Conditional updates and increments are expressed as single UPDATE
// statements with their precondition in the WHERE clause, so atomicity
// holds across process instances sharing the database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// OpenSQLite opens (or creates) the document database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	PRIMARY KEY (collection, key)
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns the raw JSON document.
func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return json.RawMessage(doc), nil
}

// Insert creates a new document, failing if the key exists.
func (s *SQLiteStore) Insert(ctx context.Context, collection, key string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO documents (collection, key, doc) VALUES (?, ?, ?)
		 ON CONFLICT (collection, key) DO NOTHING`,
		collection, key, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", collection, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrExists, collection, key)
	}
	return nil
}

// Patch shallow-merges patch into an existing document via json_patch.
func (s *SQLiteStore) Patch(ctx context.Context, collection, key string, patch map[string]any) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE documents
		 SET doc = json_patch(doc, ?), updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		 WHERE collection = ? AND key = ?`,
		string(data), collection, key,
	)
	if err != nil {
		return fmt.Errorf("patch %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("patch %s/%s: %w", collection, key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
	}
	return nil
}

// ConditionalUpdate applies patch only when field currently equals expect.
// The IS comparison is null-safe, so a nil expect matches a missing field.
func (s *SQLiteStore) ConditionalUpdate(ctx context.Context, collection, key, field string, expect any, patch map[string]any) (bool, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return false, fmt.Errorf("marshal patch: %w", err)
	}
	path := "$." + field
	res, err := s.execWithRetry(ctx,
		`UPDATE documents
		 SET doc = json_patch(doc, ?), updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		 WHERE collection = ? AND key = ? AND json_extract(doc, ?) IS ?`,
		string(data), collection, key, path, expect,
	)
	if err != nil {
		return false, fmt.Errorf("conditional update %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("conditional update %s/%s: %w", collection, key, err)
	}
	if n > 0 {
		return true, nil
	}
	// Distinguish a failed precondition from a missing document.
	if _, getErr := s.Get(ctx, collection, key); getErr != nil {
		return false, getErr
	}
	return false, nil
}

// AtomicIncrement adds delta to a numeric field when its current value is
// >= floor, as one statement.
func (s *SQLiteStore) AtomicIncrement(ctx context.Context, collection, key, field string, delta, floor int64) (bool, error) {
	path := "$." + field
	res, err := s.execWithRetry(ctx,
		`UPDATE documents
		 SET doc = json_set(doc, ?, COALESCE(json_extract(doc, ?), 0) + ?),
		     updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		 WHERE collection = ? AND key = ? AND COALESCE(json_extract(doc, ?), 0) >= ?`,
		path, path, delta, collection, key, path, floor,
	)
	if err != nil {
		return false, fmt.Errorf("atomic increment %s/%s: %w", collection, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("atomic increment %s/%s: %w", collection, key, err)
	}
	if n > 0 {
		return true, nil
	}
	if _, getErr := s.Get(ctx, collection, key); getErr != nil {
		return false, getErr
	}
	return false, nil
}

// Delete removes a document if present.
func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.execWithRetry(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}
