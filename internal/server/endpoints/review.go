package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// ReviewRequestEndpoint handles POST /api/jobs/{job_id}/review: puts the job
// behind the administrative review gate.
type ReviewRequestEndpoint struct{}

func (e *ReviewRequestEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{job_id}/review", e.handler
}

func (e *ReviewRequestEndpoint) RequiresInit() bool { return true }

func (e *ReviewRequestEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	svcs := svcctx.ServicesFrom(r.Context())
	jobID := r.PathValue("job_id")
	if err := svcs.Orchestrator.RequestReview(r.Context(), jobID, owner, svcs.ConfigMgr.Get().AdminEmail); err != nil {
		writeDomainError(w, err)
		return
	}

	job, err := svcs.JobStore.GetOwned(r.Context(), jobID, owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobView(job))
}

func (e *ReviewRequestEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "review <job-id>",
		Short: "Request administrative review for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), owner)
			var resp JobView
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/review", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	return cmd
}
