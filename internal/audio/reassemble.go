package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pagevoice/pagevoice/internal/blobstore"
	"github.com/pagevoice/pagevoice/internal/jobs"
)

// Reassembly defaults.
const (
	DefaultFetchConcurrency = 8
	DefaultMergeTimeout     = 2 * time.Minute
)

// Sentinel errors for reassembly.
var (
	// ErrNoAudio is returned when the job has no completed page segments.
	ErrNoAudio = errors.New("no audio segments")

	// ErrSegmentUnavailable is returned when a referenced segment blob is
	// missing or unreadable. The wrapped message names the page.
	ErrSegmentUnavailable = errors.New("segment unavailable")

	// ErrFormatMismatch is returned when segments disagree on sample
	// format. Mixing formats would produce garbage audio, so the merge
	// refuses instead.
	ErrFormatMismatch = errors.New("segment format mismatch")
)

// Reassembler merges per-page WAV segments into one stream.
type Reassembler struct {
	blobs blobstore.Store

	fetchConcurrency int
	timeout          time.Duration
}

// ReassemblerOption configures a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithFetchConcurrency bounds how many segment fetches run at once.
func WithFetchConcurrency(n int) ReassemblerOption {
	return func(r *Reassembler) {
		if n > 0 {
			r.fetchConcurrency = n
		}
	}
}

// WithMergeTimeout bounds the total merge time.
func WithMergeTimeout(d time.Duration) ReassemblerOption {
	return func(r *Reassembler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewReassembler creates a reassembler over the given blob store.
func NewReassembler(blobs blobstore.Store, opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{
		blobs:            blobs,
		fetchConcurrency: DefaultFetchConcurrency,
		timeout:          DefaultMergeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reassemble fetches every page segment of the job, validates that they share
// one sample format, and writes a single WAV stream to w: one canonical
// header followed by the payloads in page order. All fetches and parses
// complete before the first byte is written, so a missing segment never
// leaves a partial stream behind.
func (r *Reassembler) Reassemble(ctx context.Context, job *jobs.Job, w io.Writer) error {
	keys := jobs.SortedPageKeys(job.Pages)
	if len(keys) == 0 {
		return fmt.Errorf("%w: job %s", ErrNoAudio, job.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Fetch concurrently, then reorder: segments[i] belongs to keys[i].
	segments := make([]*Segment, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			ref := job.Pages[key].SegmentRef
			data, err := r.blobs.Get(gctx, ref)
			if errors.Is(err, blobstore.ErrNotFound) {
				return fmt.Errorf("%w: %s (%s)", ErrSegmentUnavailable, key, ref)
			}
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrSegmentUnavailable, key, err)
			}
			seg, err := Parse(data)
			if err != nil {
				return fmt.Errorf("parse segment %s of job %s: %w", key, job.ID, err)
			}
			segments[i] = seg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// The first segment sets the stream format; every other one must match.
	format := segments[0].Format
	totalLen := 0
	for i, seg := range segments {
		if seg.Format != format {
			return fmt.Errorf("%w: %s is %s, stream is %s", ErrFormatMismatch, keys[i], seg.Format, format)
		}
		totalLen += len(seg.Data)
	}

	if _, err := w.Write(EncodeHeader(format, totalLen)); err != nil {
		return fmt.Errorf("write merged header: %w", err)
	}
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("merge job %s: %w", job.ID, err)
		}
		if _, err := w.Write(seg.Data); err != nil {
			return fmt.Errorf("write segment %s: %w", keys[i], err)
		}
	}
	return nil
}
