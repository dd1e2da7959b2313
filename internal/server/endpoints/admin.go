package endpoints

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// The admin surface has no caller scoping: deployments are expected to put
// it behind their own access control, the same way the owner header is
// trusted upstream.

// ReviewListResponse is the response for the review listing.
type ReviewListResponse struct {
	Reviews []JobView `json:"reviews"`
}

// ReviewListEndpoint handles GET /api/admin/reviews.
type ReviewListEndpoint struct{}

func (e *ReviewListEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/admin/reviews", e.handler
}

func (e *ReviewListEndpoint) RequiresInit() bool { return true }

func (e *ReviewListEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobList, err := svcctx.JobStoreFrom(r.Context()).ListReviewRequested(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ReviewListResponse{Reviews: make([]JobView, 0, len(jobList))}
	for _, j := range jobList {
		resp.Reviews = append(resp.Reviews, jobView(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ReviewListEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reviews",
		Short: "List jobs awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), "")
			var resp ReviewListResponse
			if err := client.Get(cmd.Context(), "/api/admin/reviews", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// reviewAction builds the shared handler/command pair for the three review
// decisions.
type reviewAction struct {
	verb  string
	short string
	apply func(ctx context.Context, svcs *svcctx.Services, jobID string) error
}

func (a reviewAction) handler(w http.ResponseWriter, r *http.Request) {
	svcs := svcctx.ServicesFrom(r.Context())
	jobID := r.PathValue("job_id")
	if err := a.apply(r.Context(), svcs, jobID); err != nil {
		writeDomainError(w, err)
		return
	}

	job, err := svcs.JobStore.Get(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func (a reviewAction) command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   a.verb + " <job-id>",
		Short: a.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), "")
			var resp JobView
			if err := client.Post(cmd.Context(), "/api/admin/reviews/"+args[0]+"/"+a.verb, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ReviewApproveEndpoint handles POST /api/admin/reviews/{job_id}/approve.
// Approval performs the deferred whole-document debit.
type ReviewApproveEndpoint struct{}

func (e *ReviewApproveEndpoint) action() reviewAction {
	return reviewAction{
		verb:  "approve",
		short: "Approve a pending review (charges the whole document)",
		apply: func(ctx context.Context, svcs *svcctx.Services, jobID string) error {
			return svcs.Orchestrator.ApproveReview(ctx, jobID)
		},
	}
}

func (e *ReviewApproveEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/admin/reviews/{job_id}/approve", e.action().handler
}

func (e *ReviewApproveEndpoint) RequiresInit() bool { return true }

func (e *ReviewApproveEndpoint) Command(getServerURL func() string) *cobra.Command {
	return e.action().command(getServerURL)
}

// ReviewDeclineEndpoint handles POST /api/admin/reviews/{job_id}/decline.
type ReviewDeclineEndpoint struct{}

func (e *ReviewDeclineEndpoint) action() reviewAction {
	return reviewAction{
		verb:  "decline",
		short: "Decline a pending review",
		apply: func(ctx context.Context, svcs *svcctx.Services, jobID string) error {
			return svcs.Orchestrator.DeclineReview(ctx, jobID)
		},
	}
}

func (e *ReviewDeclineEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/admin/reviews/{job_id}/decline", e.action().handler
}

func (e *ReviewDeclineEndpoint) RequiresInit() bool { return true }

func (e *ReviewDeclineEndpoint) Command(getServerURL func() string) *cobra.Command {
	return e.action().command(getServerURL)
}

// ReviewDoneEndpoint handles POST /api/admin/reviews/{job_id}/done.
type ReviewDoneEndpoint struct{}

func (e *ReviewDoneEndpoint) action() reviewAction {
	return reviewAction{
		verb:  "done",
		short: "Mark an approved review as done",
		apply: func(ctx context.Context, svcs *svcctx.Services, jobID string) error {
			return svcs.Orchestrator.MarkReviewDone(ctx, jobID)
		},
	}
}

func (e *ReviewDoneEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/admin/reviews/{job_id}/done", e.action().handler
}

func (e *ReviewDoneEndpoint) RequiresInit() bool { return true }

func (e *ReviewDoneEndpoint) Command(getServerURL func() string) *cobra.Command {
	return e.action().command(getServerURL)
}
