package endpoints

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagevoice/pagevoice/internal/api"
	"github.com/pagevoice/pagevoice/internal/audio"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/svcctx"
)

// jobForAudio authorizes an audio request. A ?token= query parameter matching
// the job's access token grants access without the owner header (share
// links); otherwise the request is owner-scoped as usual. Token access stops
// at the job's expiry.
func jobForAudio(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	svcs := svcctx.ServicesFrom(r.Context())
	jobID := r.PathValue("job_id")

	if token := r.URL.Query().Get("token"); token != "" {
		job, err := svcs.JobStore.Get(r.Context(), jobID)
		if err != nil {
			writeDomainError(w, err)
			return nil, false
		}
		if job.AccessToken == "" || job.AccessToken != token {
			writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
			return nil, false
		}
		if job.ExpiresAt != nil && time.Now().After(*job.ExpiresAt) {
			writeError(w, http.StatusNotFound, jobs.ErrNotFound.Error())
			return nil, false
		}
		return job, true
	}

	owner := ownerID(w, r)
	if owner == "" {
		return nil, false
	}
	job, err := svcs.JobStore.GetOwned(r.Context(), jobID, owner)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return job, true
}

// serveMerged reassembles the job's audio into memory and writes it out.
// Buffering first means a mid-merge failure produces a clean error response
// instead of a truncated WAV.
func serveMerged(w http.ResponseWriter, r *http.Request, job *jobs.Job, asDownload bool) error {
	var buf bytes.Buffer
	if err := svcctx.ReassemblerFrom(r.Context()).Reassemble(r.Context(), job, &buf); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if asDownload {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".wav"))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return nil
}

func writeAudioError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audio.ErrNoAudio):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, audio.ErrSegmentUnavailable):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, audio.ErrFormatMismatch):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeDomainError(w, err)
	}
}

// AudioDownloadEndpoint handles GET /api/jobs/{job_id}/audio/download.
// Downloads cost credits; a merge that cannot complete refunds the charge.
type AudioDownloadEndpoint struct{}

func (e *AudioDownloadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{job_id}/audio/download", e.handler
}

func (e *AudioDownloadEndpoint) RequiresInit() bool { return true }

func (e *AudioDownloadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	job, ok := jobForAudio(w, r)
	if !ok {
		return
	}
	svcs := svcctx.ServicesFrom(r.Context())

	// The job's owner pays, whichever way the request was authorized.
	cost := svcs.ConfigMgr.Get().Costs.Download
	if err := svcs.Ledger.Debit(r.Context(), job.OwnerID, cost); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := serveMerged(w, r, job, true); err != nil {
		if refundErr := svcs.Ledger.Refund(r.Context(), job.OwnerID, cost); refundErr != nil {
			svcs.Logger.Error("download refund failed", "owner_id", job.OwnerID, "amount", cost, "error", refundErr)
		}
		writeAudioError(w, err)
		return
	}
}

func (e *AudioDownloadEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner, token, out string
	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download the job's merged audio as a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[0] + ".wav"
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			client := api.NewClient(getServerURL(), owner)
			if err := client.Download(cmd.Context(), audioPath(args[0], "download", token), f); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	cmd.Flags().StringVar(&token, "token", "", "Job access token (instead of --owner)")
	cmd.Flags().StringVar(&out, "out", "", "Output path (default <job-id>.wav)")
	return cmd
}

func audioPath(jobID, verb, token string) string {
	p := "/api/jobs/" + jobID + "/audio/" + verb
	if token != "" {
		p += "?token=" + url.QueryEscape(token)
	}
	return p
}

// AudioStreamEndpoint handles GET /api/jobs/{job_id}/audio/stream: the same
// merged WAV, served inline and free of charge.
type AudioStreamEndpoint struct{}

func (e *AudioStreamEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{job_id}/audio/stream", e.handler
}

func (e *AudioStreamEndpoint) RequiresInit() bool { return true }

func (e *AudioStreamEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	job, ok := jobForAudio(w, r)
	if !ok {
		return
	}

	if err := serveMerged(w, r, job, false); err != nil {
		writeAudioError(w, err)
		return
	}
}

func (e *AudioStreamEndpoint) Command(getServerURL func() string) *cobra.Command {
	var owner, token string
	cmd := &cobra.Command{
		Use:   "stream <job-id>",
		Short: "Stream the job's merged audio to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL(), owner)
			return client.Download(cmd.Context(), audioPath(args[0], "stream", token), os.Stdout)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Owner ID sent with the request")
	cmd.Flags().StringVar(&token, "token", "", "Job access token (instead of --owner)")
	return cmd
}
