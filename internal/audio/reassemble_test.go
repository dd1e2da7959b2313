package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pagevoice/pagevoice/internal/blobstore"
	"github.com/pagevoice/pagevoice/internal/jobs"
)

func seedSegment(t *testing.T, blobs *blobstore.MemoryStore, key string, f Format, payload []byte) {
	t.Helper()
	if _, err := blobs.Put(context.Background(), key, Encode(&Segment{Format: f, Data: payload}), "audio/wav"); err != nil {
		t.Fatalf("seed segment %s: %v", key, err)
	}
}

func segmentJob(refs map[string]string) *jobs.Job {
	pages := make(map[string]jobs.PageEntry, len(refs))
	for key, ref := range refs {
		pages[key] = jobs.PageEntry{SegmentRef: ref}
	}
	return &jobs.Job{ID: "j1", Pages: pages}
}

func TestReassembleMergesInPageOrder(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	// Keys deliberately cross the lexicographic trap: page_10 sorts before
	// page_2 as strings but must land after it in the stream.
	one := bytes.Repeat([]byte{0x01}, 32000)
	two := bytes.Repeat([]byte{0x02}, 32000)
	ten := bytes.Repeat([]byte{0x0A}, 32000)
	seedSegment(t, blobs, "audio/j1/page_1.wav", mono16k, one)
	seedSegment(t, blobs, "audio/j1/page_2.wav", mono16k, two)
	seedSegment(t, blobs, "audio/j1/page_10.wav", mono16k, ten)

	job := segmentJob(map[string]string{
		"page_10": "audio/j1/page_10.wav",
		"page_1":  "audio/j1/page_1.wav",
		"page_2":  "audio/j1/page_2.wav",
	})

	var out bytes.Buffer
	if err := NewReassembler(blobs).Reassemble(ctx, job, &out); err != nil {
		t.Fatalf("Reassemble error = %v", err)
	}

	merged, err := Parse(out.Bytes())
	if err != nil {
		t.Fatalf("parse merged stream: %v", err)
	}
	if merged.Format != mono16k {
		t.Errorf("merged format = %s", merged.Format)
	}

	// Three seconds of audio, in page order, with sizes recomputed.
	want := append(append(append([]byte{}, one...), two...), ten...)
	if !bytes.Equal(merged.Data, want) {
		t.Errorf("merged payload out of order or corrupted (%d bytes)", len(merged.Data))
	}
	if got := binary.LittleEndian.Uint32(out.Bytes()[40:44]); got != uint32(len(want)) {
		t.Errorf("data size = %d, want %d", got, len(want))
	}
	if merged.DurationMS() != 3000 {
		t.Errorf("merged duration = %dms, want 3000", merged.DurationMS())
	}
}

func TestReassembleNoSegments(t *testing.T) {
	var out bytes.Buffer
	err := NewReassembler(blobstore.NewMemoryStore()).Reassemble(context.Background(), &jobs.Job{ID: "j1"}, &out)
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Reassemble error = %v, want ErrNoAudio", err)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes on failure", out.Len())
	}
}

func TestReassembleMissingSegmentWritesNothing(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	seedSegment(t, blobs, "audio/j1/page_1.wav", mono16k, make([]byte, 320))

	job := segmentJob(map[string]string{
		"page_1": "audio/j1/page_1.wav",
		"page_2": "audio/j1/page_2.wav", // never uploaded
	})

	var out bytes.Buffer
	err := NewReassembler(blobs).Reassemble(ctx, job, &out)
	if !errors.Is(err, ErrSegmentUnavailable) {
		t.Fatalf("Reassemble error = %v, want ErrSegmentUnavailable", err)
	}
	// The error names the page, and no partial stream was emitted.
	if !bytes.Contains([]byte(err.Error()), []byte("page_2")) {
		t.Errorf("error does not name the page: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes on failure", out.Len())
	}
}

func TestReassembleFormatMismatch(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()
	stereo := Format{Channels: 2, SampleRate: 16000, BitsPerSample: 16}
	seedSegment(t, blobs, "audio/j1/page_1.wav", mono16k, make([]byte, 320))
	seedSegment(t, blobs, "audio/j1/page_2.wav", stereo, make([]byte, 320))

	job := segmentJob(map[string]string{
		"page_1": "audio/j1/page_1.wav",
		"page_2": "audio/j1/page_2.wav",
	})

	var out bytes.Buffer
	err := NewReassembler(blobs).Reassemble(ctx, job, &out)
	if !errors.Is(err, ErrFormatMismatch) {
		t.Fatalf("Reassemble error = %v, want ErrFormatMismatch", err)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %d bytes on failure", out.Len())
	}
}

func TestReassembleExtendedHeaderSegments(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	// One canonical, one with an 18-byte fmt chunk plus metadata: both
	// payloads must come through byte-exact.
	a := bytes.Repeat([]byte{0x11}, 640)
	b := bytes.Repeat([]byte{0x22}, 640)
	seedSegment(t, blobs, "audio/j1/page_1.wav", mono16k, a)
	if _, err := blobs.Put(ctx, "audio/j1/page_2.wav", makeExtendedWAV(t, mono16k, b), "audio/wav"); err != nil {
		t.Fatalf("seed extended segment: %v", err)
	}

	job := segmentJob(map[string]string{
		"page_1": "audio/j1/page_1.wav",
		"page_2": "audio/j1/page_2.wav",
	})

	var out bytes.Buffer
	if err := NewReassembler(blobs).Reassemble(ctx, job, &out); err != nil {
		t.Fatalf("Reassemble error = %v", err)
	}
	merged, err := Parse(out.Bytes())
	if err != nil {
		t.Fatalf("parse merged stream: %v", err)
	}
	if !bytes.Equal(merged.Data, append(append([]byte{}, a...), b...)) {
		t.Errorf("merged payload corrupted")
	}
}
