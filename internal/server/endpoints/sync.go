package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// SyncPage is one page's audio alignment info.
type SyncPage struct {
	SegmentRef string `json:"segment_ref"`
	SyncRef    string `json:"sync_ref,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// SyncResponse maps page keys to their alignment info, in the merge's page
// order.
type SyncResponse struct {
	JobID string              `json:"job_id"`
	Order []string            `json:"order"`
	Pages map[string]SyncPage `json:"pages"`
}

// SyncEndpoint handles GET /api/jobs/{job_id}/sync.
type SyncEndpoint struct{}

func (e *SyncEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{job_id}/sync", e.handler
}

func (e *SyncEndpoint) RequiresInit() bool { return true }

func (e *SyncEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	job, err := svcctx.JobStoreFrom(r.Context()).GetOwned(r.Context(), r.PathValue("job_id"), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := SyncResponse{
		JobID: job.ID,
		Order: jobs.SortedPageKeys(job.Pages),
		Pages: make(map[string]SyncPage, len(job.Pages)),
	}
	for key, entry := range job.Pages {
		resp.Pages[key] = SyncPage{
			SegmentRef: entry.SegmentRef,
			SyncRef:    entry.SyncRef,
			DurationMS: entry.DurationMS,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *SyncEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "sync <job-id>",
		Short: "Get per-page audio sync metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), owner)
			var resp SyncResponse
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0]+"/sync", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	return cmd
}
