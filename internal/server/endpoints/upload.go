package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/pdfutil"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// UploadResponse is the response for a successful upload.
type UploadResponse struct {
	JobID       string `json:"job_id"`
	TotalPages  int    `json:"total_pages"`
	Charged     int64  `json:"charged"`
	AccessToken string `json:"access_token"`
}

// UploadEndpoint handles POST /api/jobs/upload: multipart PDF intake.
// The upload fee is debited before the blob write and refunded if storing
// the document or creating the job record fails.
type UploadEndpoint struct{}

func (e *UploadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/upload", e.handler
}

func (e *UploadEndpoint) RequiresInit() bool { return true }

func (e *UploadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(w, r)
	if owner == "" {
		return
	}

	svcs := svcctx.ServicesFrom(r.Context())
	cfg := svcs.ConfigMgr.Get()

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Limits.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	pages, err := pdfutil.PageCount(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("not a readable PDF: %v", err))
		return
	}

	// Charge first. Everything after compensates with a refund on failure
	// so a failed upload never costs anything.
	if err := svcs.Ledger.Debit(r.Context(), owner, cfg.Costs.Upload); err != nil {
		writeDomainError(w, err)
		return
	}

	jobID := uuid.New().String()
	sourceRef, err := svcs.BlobStore.Put(r.Context(), fmt.Sprintf("pdfs/%s/original.pdf", jobID), data, "application/pdf")
	if err != nil {
		e.refund(r, owner, cfg.Costs.Upload)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store document: %v", err))
		return
	}

	now := time.Now().UTC()
	expires := now.Add(30 * 24 * time.Hour)
	job := &jobs.Job{
		ID:          jobID,
		OwnerID:     owner,
		SourceRef:   sourceRef,
		FileName:    header.Filename,
		TotalPages:  pages,
		Status:      jobs.StatusUploaded,
		AccessToken: uuid.New().String(),
		CreatedAt:   now,
		ExpiresAt:   &expires,
	}
	if err := svcs.JobStore.Insert(r.Context(), job); err != nil {
		e.refund(r, owner, cfg.Costs.Upload)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create job: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		JobID:       jobID,
		TotalPages:  pages,
		Charged:     cfg.Costs.Upload,
		AccessToken: job.AccessToken,
	})
}

func (e *UploadEndpoint) refund(r *http.Request, owner string, amount int64) {
	svcs := svcctx.ServicesFrom(r.Context())
	if err := svcs.Ledger.Refund(r.Context(), owner, amount); err != nil {
		svcs.Logger.Error("upload refund failed", "owner_id", owner, "amount", amount, "error", err)
	}
}

func (e *UploadEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF for conversion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), owner)
			var resp UploadResponse
			if err := client.Upload(cmd.Context(), "/api/jobs/upload", args[0], "file", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	return cmd
}
