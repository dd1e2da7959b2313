package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/ledger"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

func TestRequestReviewOnceOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.seedJob(t, &jobs.Job{ID: "j1", FileName: "book.pdf", TotalPages: 5, Status: jobs.StatusUploaded})

	if err := f.orch.RequestReview(ctx, "j1", "alice", "admin@example.com"); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	if err := f.orch.RequestReview(ctx, "j1", "alice", "admin@example.com"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second RequestReview error = %v, want ErrInvalidState", err)
	}

	// One email task, dispatched after the transition committed.
	emails := f.queue.SubmissionsFor(taskqueue.TaskSendEmail)
	if len(emails) != 1 {
		t.Fatalf("email submissions = %d, want 1", len(emails))
	}

	job, err := f.store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !job.ReviewRequired || job.ReviewStatus != jobs.ReviewPending {
		t.Errorf("review state = required=%v status=%q", job.ReviewRequired, job.ReviewStatus)
	}
}

func TestRequestReviewOnProcessedJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.seedJob(t, &jobs.Job{ID: "j1", TotalPages: 5, Status: jobs.StatusDone})

	// Any owned job can be put behind the gate, whatever its state.
	if err := f.orch.RequestReview(ctx, "j1", "alice", ""); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	job, err := f.store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.ReviewStatus != jobs.ReviewPending {
		t.Errorf("review status = %q, want pending", job.ReviewStatus)
	}
}

func TestRequestReviewSurvivesQueueOutage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.seedJob(t, &jobs.Job{ID: "j1", TotalPages: 5, Status: jobs.StatusUploaded})
	f.queue.FailAfter(0)

	// The notification is fire-and-forget: the state change still lands.
	if err := f.orch.RequestReview(ctx, "j1", "alice", "admin@example.com"); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	job, err := f.store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.ReviewStatus != jobs.ReviewPending {
		t.Errorf("review status = %q, want pending", job.ReviewStatus)
	}
}

func TestApproveReviewChargesWholeDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 50)
	f.seedJob(t, &jobs.Job{ID: "j1", TotalPages: 30, Status: jobs.StatusUploaded})

	if err := f.orch.RequestReview(ctx, "j1", "alice", ""); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	if err := f.orch.ApproveReview(ctx, "j1"); err != nil {
		t.Fatalf("ApproveReview error = %v", err)
	}
	if got := f.balance(t); got != 20 {
		t.Errorf("balance = %d, want 20", got)
	}

	if err := f.orch.MarkReviewDone(ctx, "j1"); err != nil {
		t.Fatalf("MarkReviewDone error = %v", err)
	}
	job, err := f.store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.ReviewStatus != jobs.ReviewDone {
		t.Errorf("review status = %q, want done", job.ReviewStatus)
	}
}

func TestStartAfterApprovalChargesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.seedJob(t, &jobs.Job{ID: "j1", SourceRef: "pdf/j1", TotalPages: 10, Status: jobs.StatusUploaded})

	if err := f.orch.RequestReview(ctx, "j1", "alice", ""); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	if err := f.orch.ApproveReview(ctx, "j1"); err != nil {
		t.Fatalf("ApproveReview error = %v", err)
	}
	if got := f.balance(t); got != 90 {
		t.Fatalf("balance after approval = %d, want 90", got)
	}

	// The approval paid for every page; the start is free.
	res, err := f.orch.StartJob(ctx, "j1", "alice", 1, 10)
	if err != nil {
		t.Fatalf("StartJob error = %v", err)
	}
	if res.Charged != 0 {
		t.Errorf("Charged = %d, want 0", res.Charged)
	}
	if len(res.TaskIDs) != 10 {
		t.Errorf("TaskIDs = %d, want 10", len(res.TaskIDs))
	}
	if got := f.balance(t); got != 90 {
		t.Errorf("balance after start = %d, want 90", got)
	}
}

func TestStartAfterApprovalCompensatesWithoutRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.seedJob(t, &jobs.Job{ID: "j1", SourceRef: "pdf/j1", TotalPages: 10, Status: jobs.StatusUploaded})

	if err := f.orch.RequestReview(ctx, "j1", "alice", ""); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	if err := f.orch.ApproveReview(ctx, "j1"); err != nil {
		t.Fatalf("ApproveReview error = %v", err)
	}

	// Partial dispatch rolls the claim back; nothing was debited at start,
	// so nothing is refunded either.
	f.queue.FailAfter(3)
	if _, err := f.orch.StartJob(ctx, "j1", "alice", 1, 10); !errors.Is(err, ErrDispatchFailed) {
		t.Fatalf("StartJob error = %v, want ErrDispatchFailed", err)
	}
	if got := f.balance(t); got != 90 {
		t.Errorf("balance after failed start = %d, want 90", got)
	}
	if got := f.jobStatus(t, "j1"); got != jobs.StatusUploaded {
		t.Errorf("status = %q, want uploaded", got)
	}
}

func TestApproveReviewInsufficientCreditsIsRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10)
	f.seedJob(t, &jobs.Job{ID: "j1", TotalPages: 30, Status: jobs.StatusUploaded})

	if err := f.orch.RequestReview(ctx, "j1", "alice", ""); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	if err := f.orch.ApproveReview(ctx, "j1"); !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("ApproveReview error = %v, want ErrInsufficientCredits", err)
	}

	// Still pending and unchanged: top up and retry.
	if err := f.ledger.Refund(ctx, "alice", 25); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if err := f.orch.ApproveReview(ctx, "j1"); err != nil {
		t.Fatalf("retry ApproveReview error = %v", err)
	}
	if got := f.balance(t); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
}

func TestReviewWrongPredecessor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 100)
	f.seedJob(t, &jobs.Job{ID: "j1", TotalPages: 5, Status: jobs.StatusUploaded})

	// No review requested yet: nothing to approve, decline, or finish.
	if err := f.orch.ApproveReview(ctx, "j1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ApproveReview error = %v, want ErrInvalidState", err)
	}
	if err := f.orch.DeclineReview(ctx, "j1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("DeclineReview error = %v, want ErrInvalidState", err)
	}
	if err := f.orch.MarkReviewDone(ctx, "j1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("MarkReviewDone error = %v, want ErrInvalidState", err)
	}

	if err := f.orch.RequestReview(ctx, "j1", "alice", ""); err != nil {
		t.Fatalf("RequestReview error = %v", err)
	}
	if err := f.orch.DeclineReview(ctx, "j1"); err != nil {
		t.Fatalf("DeclineReview error = %v", err)
	}
	// Declined is terminal.
	if err := f.orch.ApproveReview(ctx, "j1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ApproveReview after decline error = %v, want ErrInvalidState", err)
	}
}
