package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pagevoice/pagevoice/internal/docstore"
)

const (
	// Collection is the document collection holding job records.
	Collection = "jobs"

	// dispatchCollection holds one reverse-lookup document per dispatched
	// task, keyed by task ID, so a bare task ID can be resolved to its job
	// with key access only.
	dispatchCollection = "dispatch"

	// ownersCollection holds one index document per owner mapping their
	// job IDs to true. The store is key-access only, so listings go
	// through these indexes rather than scans.
	ownersCollection = "owners"

	// reviewsCollection holds the single review index document.
	reviewsCollection = "reviews"
	reviewIndexKey    = "pending"
)

// Sentinel errors for the jobs package.
var (
	// ErrNotFound is returned when a job does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned for a transition the table forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// DispatchRecord resolves a task ID back to its job.
type DispatchRecord struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
	Page   int    `json:"page"`
}

// Store persists jobs in the document store.
type Store struct {
	docs docstore.Store
}

// NewStore creates a job store over the given document store.
func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

// Insert creates a new job record and adds it to the owner's index.
func (s *Store) Insert(ctx context.Context, job *Job) error {
	if err := s.docs.Insert(ctx, Collection, job.ID, job); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	if err := s.upsertIndex(ctx, ownersCollection, job.OwnerID, job.ID); err != nil {
		return fmt.Errorf("index job %s for owner %s: %w", job.ID, job.OwnerID, err)
	}
	return nil
}

// upsertIndex sets jobs.<jobID> = true on the index document, creating the
// document on first use.
func (s *Store) upsertIndex(ctx context.Context, collection, key, jobID string) error {
	patch := map[string]any{"jobs": map[string]any{jobID: true}}
	err := s.docs.Patch(ctx, collection, key, patch)
	if errors.Is(err, docstore.ErrNotFound) {
		err = s.docs.Insert(ctx, collection, key, patch)
		if errors.Is(err, docstore.ErrExists) {
			// Lost the creation race; the patch will land now.
			err = s.docs.Patch(ctx, collection, key, patch)
		}
	}
	return err
}

type indexDoc struct {
	Jobs map[string]bool `json:"jobs"`
}

func (s *Store) readIndex(ctx context.Context, collection, key string) ([]string, error) {
	raw, err := s.docs.Get(ctx, collection, key)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s/%s: %w", collection, key, err)
	}

	var idx indexDoc
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("decode index %s/%s: %w", collection, key, err)
	}
	ids := make([]string, 0, len(idx.Jobs))
	for id, present := range idx.Jobs {
		if present {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListOwned returns all of an owner's jobs, ordered by job ID.
func (s *Store) ListOwned(ctx context.Context, ownerID string) ([]*Job, error) {
	ids, err := s.readIndex(ctx, ownersCollection, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // index entry outlived the job
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// ListReviewRequested returns every job that has requested review, ordered
// by job ID. Callers filter on ReviewStatus as needed.
func (s *Store) ListReviewRequested(ctx context.Context) ([]*Job, error) {
	ids, err := s.readIndex(ctx, reviewsCollection, reviewIndexKey)
	if err != nil {
		return nil, err
	}

	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// Get returns the job, or ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	raw, err := s.docs.Get(ctx, Collection, jobID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// GetOwned returns the job only if it belongs to ownerID. A job owned by
// someone else reads the same as a missing one.
func (s *Store) GetOwned(ctx context.Context, jobID, ownerID string) (*Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return job, nil
}

// TransitionStatus performs a guarded compare-and-set on the job's status.
// It returns false when the job is no longer in the expected predecessor
// state, and ErrInvalidTransition when the table forbids from -> to.
// extra fields are applied in the same atomic update.
func (s *Store) TransitionStatus(ctx context.Context, jobID string, from, to Status, extra map[string]any) (bool, error) {
	if !CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	patch := map[string]any{"status": string(to)}
	for k, v := range extra {
		patch[k] = v
	}

	ok, err := s.docs.ConditionalUpdate(ctx, Collection, jobID, "status", string(from), patch)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return false, fmt.Errorf("transition job %s %s -> %s: %w", jobID, from, to, err)
	}
	return ok, nil
}

// TransitionReview performs a guarded compare-and-set on the review status.
func (s *Store) TransitionReview(ctx context.Context, jobID string, from, to ReviewStatus, extra map[string]any) (bool, error) {
	if !CanTransitionReview(from, to) {
		return false, fmt.Errorf("%w: review %q -> %q", ErrInvalidTransition, from, to)
	}

	patch := map[string]any{"review_status": string(to)}
	for k, v := range extra {
		patch[k] = v
	}

	// The zero review status is stored as an absent field, which the
	// nil expect matches.
	var expect any
	if from != ReviewNone {
		expect = string(from)
	}

	ok, err := s.docs.ConditionalUpdate(ctx, Collection, jobID, "review_status", expect, patch)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return false, fmt.Errorf("transition job %s review %q -> %q: %w", jobID, from, to, err)
	}
	return ok, nil
}

// RecordDispatch attaches the full task-handle set to the job and writes
// one reverse-lookup document per task.
func (s *Store) RecordDispatch(ctx context.Context, jobID string, pageStart int, taskIDs []string) error {
	if err := s.docs.Patch(ctx, Collection, jobID, map[string]any{"task_ids": taskIDs}); err != nil {
		return fmt.Errorf("record dispatch for job %s: %w", jobID, err)
	}
	for i, taskID := range taskIDs {
		rec := DispatchRecord{TaskID: taskID, JobID: jobID, Page: pageStart + i}
		if err := s.docs.Insert(ctx, dispatchCollection, taskID, rec); err != nil {
			return fmt.Errorf("record dispatch task %s for job %s: %w", taskID, jobID, err)
		}
	}
	return nil
}

// ResolveTask returns the dispatch record for taskID, or ErrNotFound.
func (s *Store) ResolveTask(ctx context.Context, taskID string) (*DispatchRecord, error) {
	raw, err := s.docs.Get(ctx, dispatchCollection, taskID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve task %s: %w", taskID, err)
	}

	var rec DispatchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode dispatch record %s: %w", taskID, err)
	}
	return &rec, nil
}

// RecordPage writes the page entry for a completed page task. The nested
// patch merges into the existing page map without touching other entries.
func (s *Store) RecordPage(ctx context.Context, jobID string, page int, entry PageEntry) error {
	patch := map[string]any{
		"pages": map[string]any{PageKey(page): entry},
	}
	if err := s.docs.Patch(ctx, Collection, jobID, patch); err != nil {
		return fmt.Errorf("record page %d for job %s: %w", page, jobID, err)
	}
	return nil
}

// SetReviewRequested marks the job as review-gated exactly once: the CAS on
// the unset review_status guarantees a second request fails. Winning the CAS
// also adds the job to the review index.
func (s *Store) SetReviewRequested(ctx context.Context, jobID string) (bool, error) {
	ok, err := s.TransitionReview(ctx, jobID, ReviewNone, ReviewPending, map[string]any{
		"review_required":     true,
		"review_requested_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil || !ok {
		return ok, err
	}
	if err := s.upsertIndex(ctx, reviewsCollection, reviewIndexKey, jobID); err != nil {
		return true, fmt.Errorf("index review for job %s: %w", jobID, err)
	}
	return true, nil
}
