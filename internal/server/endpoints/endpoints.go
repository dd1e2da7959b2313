// Package endpoints implements the HTTP API surface. Each endpoint also
// exposes a Cobra command that calls it over HTTP, so the CLI and the HTTP
// API stay in lockstep.
package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/ledger"
	"github.com/pagevoice/pagevoice/internal/orchestrator"
)

// All returns every endpoint the server registers.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&UploadEndpoint{},
		&JobGetEndpoint{},
		&StartEndpoint{},
		&TaskStatusEndpoint{},
		&ReviewRequestEndpoint{},
		&ReviewListEndpoint{},
		&ReviewApproveEndpoint{},
		&ReviewDeclineEndpoint{},
		&ReviewDoneEndpoint{},
		&AudioDownloadEndpoint{},
		&AudioStreamEndpoint{},
		&SyncEndpoint{},
		&ActivityEndpoint{},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// ownerID extracts the caller's owner ID from the request. Writes a 400 and
// returns "" when the header is absent.
func ownerID(w http.ResponseWriter, r *http.Request) string {
	owner := r.Header.Get(api.OwnerHeader)
	if owner == "" {
		writeError(w, http.StatusBadRequest, api.OwnerHeader+" header is required")
	}
	return owner
}

// writeDomainError maps domain sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orchestrator.ErrAlreadyStarted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ledger.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrDispatchFailed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// JobView is the external representation of a job.
type JobView struct {
	JobID          string     `json:"job_id"`
	FileName       string     `json:"file_name,omitempty"`
	TotalPages     int        `json:"total_pages"`
	Status         string     `json:"status"`
	PagesDone      int        `json:"pages_done"`
	ReviewRequired bool       `json:"review_required,omitempty"`
	ReviewStatus   string     `json:"review_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func jobView(j *jobs.Job) JobView {
	return JobView{
		JobID:          j.ID,
		FileName:       j.FileName,
		TotalPages:     j.TotalPages,
		Status:         string(j.Status),
		PagesDone:      len(j.Pages),
		ReviewRequired: j.ReviewRequired,
		ReviewStatus:   string(j.ReviewStatus),
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		ExpiresAt:      j.ExpiresAt,
	}
}
