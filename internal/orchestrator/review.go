package orchestrator

import (
	"context"
	"fmt"

	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

// RequestReview puts the job behind the administrative review gate. Any job
// the caller owns qualifies, whatever its processing state; the only guard is
// that a review can be requested once. The transition commits first; the
// notification task is fire-and-forget, so a queue outage never blocks or
// duplicates the state change.
func (o *Orchestrator) RequestReview(ctx context.Context, jobID, ownerID, notifyEmail string) error {
	job, err := o.store.GetOwned(ctx, jobID, ownerID)
	if err != nil {
		return err
	}

	ok, err := o.store.SetReviewRequested(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: review already requested for %s", ErrInvalidState, jobID)
	}

	if notifyEmail != "" {
		payload := taskqueue.EmailTaskPayload{
			JobID:   jobID,
			To:      notifyEmail,
			Subject: "Review requested",
			Body:    fmt.Sprintf("Job %s (%s) awaits review.", jobID, job.FileName),
		}
		if _, err := o.queue.Submit(ctx, taskqueue.TaskSendEmail, payload); err != nil {
			o.logger.Warn("review notification dispatch failed", "job_id", jobID, "error", err)
		}
	}
	return nil
}

// ApproveReview approves a pending review and performs the deferred debit for
// the whole document. The debit happens first: the review table is forward
// only, so charging before the CAS keeps a failed approval retryable, and a
// lost CAS race (someone else approved or declined first) refunds the charge.
func (o *Orchestrator) ApproveReview(ctx context.Context, jobID string) error {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.ReviewStatus != jobs.ReviewPending {
		return fmt.Errorf("%w: job %s review is %q", ErrInvalidState, jobID, job.ReviewStatus)
	}

	cost := int64(job.TotalPages) * o.costs.Page
	if err := o.ledger.Debit(ctx, job.OwnerID, cost); err != nil {
		return err
	}

	ok, err := o.store.TransitionReview(ctx, jobID, jobs.ReviewPending, jobs.ReviewApproved, nil)
	if err != nil || !ok {
		if rbErr := o.ledger.Refund(ctx, job.OwnerID, cost); rbErr != nil {
			o.logger.Error("approval refund failed", "job_id", jobID, "amount", cost, "error", rbErr)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s review is no longer pending", ErrInvalidState, jobID)
	}

	o.logger.Info("review approved", "job_id", jobID, "charged", cost)
	return nil
}

// DeclineReview declines a pending review.
func (o *Orchestrator) DeclineReview(ctx context.Context, jobID string) error {
	ok, err := o.store.TransitionReview(ctx, jobID, jobs.ReviewPending, jobs.ReviewDeclined, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s review is not pending", ErrInvalidState, jobID)
	}
	return nil
}

// MarkReviewDone closes out an approved review.
func (o *Orchestrator) MarkReviewDone(ctx context.Context, jobID string) error {
	ok, err := o.store.TransitionReview(ctx, jobID, jobs.ReviewApproved, jobs.ReviewDone, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s review is not approved", ErrInvalidState, jobID)
	}
	return nil
}
