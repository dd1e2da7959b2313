package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/ledger"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// ActivityResponse is the caller's jobs plus their credit balance.
type ActivityResponse struct {
	Balance int64     `json:"balance"`
	Jobs    []JobView `json:"jobs"`
}

// ActivityEndpoint handles GET /api/activity.
type ActivityEndpoint struct{}

func (e *ActivityEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/activity", e.handler
}

func (e *ActivityEndpoint) RequiresInit() bool { return true }

func (e *ActivityEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	svcs := svcctx.ServicesFrom(r.Context())

	balance, err := svcs.Ledger.Balance(r.Context(), owner)
	if err != nil && !errors.Is(err, ledger.ErrUserNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	jobList, err := svcs.JobStore.ListOwned(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ActivityResponse{Balance: balance, Jobs: make([]JobView, 0, len(jobList))}
	for _, j := range jobList {
		resp.Jobs = append(resp.Jobs, jobView(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ActivityEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List your jobs and credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), owner)
			var resp ActivityResponse
			if err := client.Get(cmd.Context(), "/api/activity", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	return cmd
}
