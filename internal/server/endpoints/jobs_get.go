package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// JobGetEndpoint handles GET /api/jobs/{job_id}.
type JobGetEndpoint struct{}

func (e *JobGetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{job_id}", e.handler
}

func (e *JobGetEndpoint) RequiresInit() bool { return true }

func (e *JobGetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	job, err := svcctx.JobStoreFrom(r.Context()).GetOwned(r.Context(), r.PathValue("job_id"), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(job))
}

func (e *JobGetEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Get a job's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), owner)
			var resp JobView
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	return cmd
}
