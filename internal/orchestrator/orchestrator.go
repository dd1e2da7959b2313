// Package orchestrator drives the job lifecycle: claiming a job for
// processing, charging credits, fanning page tasks out to the queue, and the
// administrative review gate. Partial failures compensate fully - a job either
// ends up dispatched and charged, or back where it started with the balance
// restored.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/ledger"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

// DefaultMaxPagesPerBatch caps how many page tasks one start request may
// dispatch.
const DefaultMaxPagesPerBatch = 50

// Sentinel errors for the orchestrator package.
var (
	// ErrInvalidRange is returned for a page range outside the document or
	// over the batch cap.
	ErrInvalidRange = errors.New("invalid page range")

	// ErrAlreadyStarted is returned when the job is not in the uploaded
	// state at claim time - including when a concurrent start won the claim.
	ErrAlreadyStarted = errors.New("job already started")

	// ErrDispatchFailed is returned when task submission failed partway.
	// The job status and the caller's balance have been restored; the
	// request is safe to retry.
	ErrDispatchFailed = errors.New("task dispatch failed")

	// ErrInvalidState is returned for a review operation whose predecessor
	// state does not hold.
	ErrInvalidState = errors.New("invalid job state")
)

// Orchestrator coordinates the job store, the credit ledger, and the task
// queue.
type Orchestrator struct {
	store  *jobs.Store
	ledger *ledger.Ledger
	queue  taskqueue.Queue
	costs  ledger.Costs

	maxPagesPerBatch int
	logger           *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxPagesPerBatch overrides the per-request page cap.
func WithMaxPagesPerBatch(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPagesPerBatch = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator with default costs and limits unless overridden.
func New(store *jobs.Store, l *ledger.Ledger, queue taskqueue.Queue, costs ledger.Costs, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:            store,
		ledger:           l,
		queue:            queue,
		costs:            costs,
		maxPagesPerBatch: DefaultMaxPagesPerBatch,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartResult reports a successful dispatch.
type StartResult struct {
	JobID   string   `json:"job_id"`
	Pages   int      `json:"pages"`
	Charged int64    `json:"charged"`
	TaskIDs []string `json:"task_ids"`
}

// StartJob claims the job for processing and dispatches one page task per
// page in [pageStart, pageEnd]. The ordering matters: the status CAS claims
// the job before any money moves, so a losing concurrent caller is rejected
// without ever touching the ledger. Every failure after the claim compensates
// in full - the status rolls back to uploaded and any debit is refunded.
func (o *Orchestrator) StartJob(ctx context.Context, jobID, ownerID string, pageStart, pageEnd int) (*StartResult, error) {
	job, err := o.store.GetOwned(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}

	if pageStart < 1 || pageEnd < pageStart || pageEnd > job.TotalPages {
		return nil, fmt.Errorf("%w: pages %d-%d of %d", ErrInvalidRange, pageStart, pageEnd, job.TotalPages)
	}
	pages := pageEnd - pageStart + 1
	if pages > o.maxPagesPerBatch {
		return nil, fmt.Errorf("%w: %d pages exceeds batch limit %d", ErrInvalidRange, pages, o.maxPagesPerBatch)
	}
	if job.ReviewRequired && job.ReviewStatus != jobs.ReviewApproved {
		return nil, fmt.Errorf("%w: job %s awaits review", ErrInvalidState, jobID)
	}

	// Claim. Exactly one concurrent caller wins this CAS.
	claimed, err := o.store.TransitionStatus(ctx, jobID, jobs.StatusUploaded, jobs.StatusProcessing, map[string]any{
		"started_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, jobID)
	}

	// An approved review already paid for the whole document at approval
	// time; starting it must not charge again.
	cost := int64(pages) * o.costs.Page
	if job.ReviewRequired && job.ReviewStatus == jobs.ReviewApproved {
		cost = 0
	}
	if cost > 0 {
		if err := o.ledger.Debit(ctx, ownerID, cost); err != nil {
			o.release(ctx, jobID)
			return nil, err
		}
	}

	taskIDs := make([]string, 0, pages)
	for page := pageStart; page <= pageEnd; page++ {
		payload := taskqueue.PageTaskPayload{JobID: jobID, SourceRef: job.SourceRef, Page: page}
		taskID, err := o.queue.Submit(ctx, taskqueue.TaskProcessPage, payload)
		if err != nil {
			o.compensate(ctx, jobID, ownerID, cost)
			o.logger.Warn("page dispatch failed, compensated",
				"job_id", jobID, "page", page, "dispatched", len(taskIDs), "error", err)
			return nil, fmt.Errorf("%w: page %d: %v", ErrDispatchFailed, page, err)
		}
		taskIDs = append(taskIDs, taskID)
	}

	if err := o.store.RecordDispatch(ctx, jobID, pageStart, taskIDs); err != nil {
		o.compensate(ctx, jobID, ownerID, cost)
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	o.logger.Info("job dispatched", "job_id", jobID, "pages", pages, "charged", cost)
	return &StartResult{JobID: jobID, Pages: pages, Charged: cost, TaskIDs: taskIDs}, nil
}

// release rolls the claim back without touching the ledger.
func (o *Orchestrator) release(ctx context.Context, jobID string) {
	if _, err := o.store.TransitionStatus(ctx, jobID, jobs.StatusProcessing, jobs.StatusUploaded, nil); err != nil {
		o.logger.Error("claim rollback failed", "job_id", jobID, "error", err)
	}
}

// compensate undoes a claimed-and-charged start: full refund, status back to
// uploaded. The refund is the full batch cost even when some tasks went out;
// already-dispatched tasks run against a job back in uploaded state, which
// page recording tolerates.
func (o *Orchestrator) compensate(ctx context.Context, jobID, ownerID string, cost int64) {
	if cost > 0 {
		if err := o.ledger.Refund(ctx, ownerID, cost); err != nil {
			o.logger.Error("refund failed", "job_id", jobID, "owner_id", ownerID, "amount", cost, "error", err)
		}
	}
	o.release(ctx, jobID)
}

// TaskStatus resolves a task ID to its job, verifies the caller owns the job
// and the task belongs to its recorded dispatch set, and forwards to the
// queue's status lookup. A bare task ID proves nothing on its own.
func (o *Orchestrator) TaskStatus(ctx context.Context, taskID, ownerID string) (taskqueue.Status, error) {
	rec, err := o.store.ResolveTask(ctx, taskID)
	if err != nil {
		return taskqueue.Status{}, err
	}
	job, err := o.store.GetOwned(ctx, rec.JobID, ownerID)
	if err != nil {
		return taskqueue.Status{}, err
	}
	if !job.HasTask(taskID) {
		return taskqueue.Status{}, fmt.Errorf("%w: task %s", jobs.ErrNotFound, taskID)
	}
	return o.queue.Status(ctx, taskID)
}
