package endpoints

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/orchestrator"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// StartRequest is the request body for starting conversion.
type StartRequest struct {
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`
}

// StartEndpoint handles POST /api/jobs/{job_id}/start: claims the job,
// charges per-page credits, and dispatches one task per page.
type StartEndpoint struct{}

func (e *StartEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{job_id}/start", e.handler
}

func (e *StartEndpoint) RequiresInit() bool { return true }

func (e *StartEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := svcctx.OrchestratorFrom(r.Context()).StartJob(r.Context(), r.PathValue("job_id"), owner, req.PageStart, req.PageEnd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (e *StartEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "start <job-id> <page-start> <page-end>",
		Short: "Start converting a page range to audio",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := strconv.Atoi(args[1])
			if err != nil {
				return err
			}
			end, err := strconv.Atoi(args[2])
			if err != nil {
				return err
			}

			client := api.NewClient(getServerURL(), owner)
			var resp orchestrator.StartResult
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/start", StartRequest{PageStart: start, PageEnd: end}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	return cmd
}
