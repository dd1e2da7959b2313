package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/svcctx"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

// TaskStatusEndpoint handles GET /api/tasks/{task_id}. The task must belong
// to a job the caller owns; anything else reads as not found.
type TaskStatusEndpoint struct{}

func (e *TaskStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks/{task_id}", e.handler
}

func (e *TaskStatusEndpoint) RequiresInit() bool { return true }

func (e *TaskStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	st, err := svcctx.OrchestratorFrom(r.Context()).TaskStatus(r.Context(), r.PathValue("task_id"), owner)
	if err != nil {
		if errors.Is(err, taskqueue.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (e *TaskStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Get a dispatched task's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), owner)
			var resp taskqueue.Status
			if err := client.Get(cmd.Context(), "/api/tasks/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	return cmd
}
