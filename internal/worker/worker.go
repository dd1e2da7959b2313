// Package worker implements the task consumers: process_page turns one PDF
// page into a narrated WAV segment, send_email delivers notifications. The
// workers run out of process from the API server and communicate only
// through the task queue, the blob store, and the job store.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pagevoice/pagevoice/internal/audio"
	"github.com/pagevoice/pagevoice/internal/blobstore"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/pdfutil"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

// Worker handles page and email tasks.
type Worker struct {
	jobs   *jobs.Store
	blobs  blobstore.Store
	synth  Synthesizer
	mailer Mailer
	logger *slog.Logger
}

// New creates a worker. A nil mailer falls back to log delivery.
func New(jobStore *jobs.Store, blobs blobstore.Store, synth Synthesizer, mailer Mailer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &Worker{jobs: jobStore, blobs: blobs, synth: synth, mailer: mailer, logger: logger}
}

// PageResult is recorded as the task result for a completed page.
type PageResult struct {
	JobID      string `json:"job_id"`
	Page       int    `json:"page"`
	SegmentRef string `json:"segment_ref"`
	SyncRef    string `json:"sync_ref,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// SegmentKey returns the blob key for a job's page segment.
func SegmentKey(jobID string, page int) string {
	return fmt.Sprintf("audio/%s/%s.wav", jobID, jobs.PageKey(page))
}

// SyncKey returns the blob key for a page's sync metadata.
func SyncKey(jobID string, page int) string {
	return fmt.Sprintf("sync/%s/%s.json", jobID, jobs.PageKey(page))
}

// HandlePage processes one process_page task: fetch the source PDF, extract
// the page text, synthesize speech, validate the WAV, store the segment and
// its sync metadata, and record the page entry on the job. Errors propagate
// to the queue, which retries up to its delivery limit.
func (w *Worker) HandlePage(ctx context.Context, msg taskqueue.Message) (any, error) {
	var payload taskqueue.PageTaskPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode page task payload: %w", err)
	}

	pdf, err := w.blobs.Get(ctx, payload.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s for job %s: %w", payload.SourceRef, payload.JobID, err)
	}

	text, err := pdfutil.PageText(pdf, payload.Page)
	if err != nil {
		return nil, fmt.Errorf("job %s page %d: %w", payload.JobID, payload.Page, err)
	}
	if text == "" {
		// Blank pages still get a (near-silent) segment so the merge
		// keeps page positions intact.
		text = " "
	}

	wav, err := w.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("synthesize job %s page %d: %w", payload.JobID, payload.Page, err)
	}

	// A segment that does not parse would poison the final merge; reject
	// it here while the task can still be retried.
	seg, err := audio.Parse(wav)
	if err != nil {
		return nil, fmt.Errorf("validate segment for job %s page %d: %w", payload.JobID, payload.Page, err)
	}

	segmentRef, err := w.blobs.Put(ctx, SegmentKey(payload.JobID, payload.Page), wav, "audio/wav")
	if err != nil {
		return nil, fmt.Errorf("store segment for job %s page %d: %w", payload.JobID, payload.Page, err)
	}

	syncRef, err := w.storeSyncMetadata(ctx, payload, text, seg)
	if err != nil {
		return nil, err
	}

	entry := jobs.PageEntry{SegmentRef: segmentRef, SyncRef: syncRef, DurationMS: seg.DurationMS()}
	if err := w.jobs.RecordPage(ctx, payload.JobID, payload.Page, entry); err != nil {
		return nil, err
	}

	w.logger.Info("page processed",
		"job_id", payload.JobID, "page", payload.Page, "duration_ms", entry.DurationMS)
	return PageResult{
		JobID:      payload.JobID,
		Page:       payload.Page,
		SegmentRef: segmentRef,
		SyncRef:    syncRef,
		DurationMS: entry.DurationMS,
	}, nil
}

// SyncMetadata aligns a page's text with its audio timing.
type SyncMetadata struct {
	JobID      string `json:"job_id"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
	DurationMS int64  `json:"duration_ms"`
	SampleRate uint32 `json:"sample_rate"`
}

func (w *Worker) storeSyncMetadata(ctx context.Context, payload taskqueue.PageTaskPayload, text string, seg *audio.Segment) (string, error) {
	meta := SyncMetadata{
		JobID:      payload.JobID,
		Page:       payload.Page,
		Text:       text,
		DurationMS: seg.DurationMS(),
		SampleRate: seg.Format.SampleRate,
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal sync metadata: %w", err)
	}
	ref, err := w.blobs.Put(ctx, SyncKey(payload.JobID, payload.Page), data, "application/json")
	if err != nil {
		return "", fmt.Errorf("store sync metadata for job %s page %d: %w", payload.JobID, payload.Page, err)
	}
	return ref, nil
}

// HandleEmail processes one send_email task.
func (w *Worker) HandleEmail(ctx context.Context, msg taskqueue.Message) (any, error) {
	var payload taskqueue.EmailTaskPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode email task payload: %w", err)
	}
	if err := w.mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		return nil, fmt.Errorf("send email for job %s: %w", payload.JobID, err)
	}
	return nil, nil
}
