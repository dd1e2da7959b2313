package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pagevoice/pagevoice/internal/audio"
	"github.com/pagevoice/pagevoice/internal/blobstore"
	"github.com/pagevoice/pagevoice/internal/docstore"
	"github.com/pagevoice/pagevoice/internal/jobs"
	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

// fakeSynth returns one second of 16 kHz mono audio for any text, or the
// configured error.
type fakeSynth struct {
	err   error
	texts []string
	raw   []byte // overrides the generated WAV when set
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, text)
	if f.raw != nil {
		return f.raw, nil
	}
	seg := &audio.Segment{
		Format: audio.Format{Channels: 1, SampleRate: 16000, BitsPerSample: 16},
		Data:   make([]byte, 32000),
	}
	return audio.Encode(seg), nil
}

type recordingMailer struct {
	to, subject string
	err         error
}

func (m *recordingMailer) Send(ctx context.Context, to, subject, body string) error {
	m.to, m.subject = to, subject
	return m.err
}

func pageMessage(t *testing.T, payload taskqueue.PageTaskPayload) taskqueue.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return taskqueue.Message{TaskID: "t1", Name: taskqueue.TaskProcessPage, Payload: data}
}

func newWorkerFixture(t *testing.T, synth Synthesizer) (*Worker, *jobs.Store, *blobstore.MemoryStore) {
	t.Helper()
	store := jobs.NewStore(docstore.NewMemoryStore())
	blobs := blobstore.NewMemoryStore()
	return New(store, blobs, synth, nil, nil), store, blobs
}

func seedSourcePDF(t *testing.T, blobs *blobstore.MemoryStore) string {
	t.Helper()
	ref, err := blobs.Put(context.Background(), "pdfs/j1/original.pdf", minimalPDF(t), "application/pdf")
	if err != nil {
		t.Fatalf("seed pdf: %v", err)
	}
	return ref
}

// minimalPDF builds a one-page PDF with a single text-show operator.
func minimalPDF(t *testing.T) []byte {
	t.Helper()

	content := "BT /F1 12 Tf 72 720 Td (Hello narrated world) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		"", // placeholder, stream object built below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = b.Len()
		if i == 3 {
			b.WriteString("4 0 obj\n")
			b.WriteString("<< /Length " + itoa(len(content)) + " >>\nstream\n")
			b.WriteString(content)
			b.WriteString("\nendstream\nendobj\n")
			continue
		}
		b.WriteString(itoa(i+1) + " 0 obj\n" + obj + "\nendobj\n")
	}

	xref := b.Len()
	b.WriteString("xref\n0 " + itoa(len(objects)+1) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		b.WriteString(pad10(offsets[i]) + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + itoa(len(objects)+1) + " /Root 1 0 R >>\nstartxref\n")
	b.WriteString(itoa(xref) + "\n%%EOF\n")
	return []byte(b.String())
}

func itoa(n int) string { return strconv.Itoa(n) }

func pad10(n int) string {
	s := itoa(n)
	return strings.Repeat("0", 10-len(s)) + s
}

func TestHandlePageStoresSegmentAndRecordsEntry(t *testing.T) {
	ctx := context.Background()
	synth := &fakeSynth{}
	w, store, blobs := newWorkerFixture(t, synth)
	ref := seedSourcePDF(t, blobs)

	if err := store.Insert(ctx, &jobs.Job{ID: "j1", OwnerID: "alice", SourceRef: ref, TotalPages: 1, Status: jobs.StatusProcessing, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	result, err := w.HandlePage(ctx, pageMessage(t, taskqueue.PageTaskPayload{JobID: "j1", SourceRef: ref, Page: 1}))
	if err != nil {
		t.Fatalf("HandlePage error = %v", err)
	}

	pr, ok := result.(PageResult)
	if !ok {
		t.Fatalf("result type = %T", result)
	}
	if pr.SegmentRef != SegmentKey("j1", 1) || pr.DurationMS != 1000 {
		t.Errorf("result = %+v", pr)
	}

	// The segment is in the blob store and parses.
	data, err := blobs.Get(ctx, pr.SegmentRef)
	if err != nil {
		t.Fatalf("segment blob: %v", err)
	}
	if _, err := audio.Parse(data); err != nil {
		t.Errorf("stored segment does not parse: %v", err)
	}

	// The sync metadata carries the extracted text.
	syncData, err := blobs.Get(ctx, pr.SyncRef)
	if err != nil {
		t.Fatalf("sync blob: %v", err)
	}
	var meta SyncMetadata
	if err := json.Unmarshal(syncData, &meta); err != nil {
		t.Fatalf("decode sync metadata: %v", err)
	}
	if !strings.Contains(meta.Text, "Hello narrated world") {
		t.Errorf("sync text = %q", meta.Text)
	}

	// The page entry landed on the job.
	job, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	entry, ok := job.Pages["page_1"]
	if !ok || entry.SegmentRef != pr.SegmentRef || entry.DurationMS != 1000 {
		t.Errorf("page entry = %+v (present=%v)", entry, ok)
	}
}

func TestHandlePageMissingSource(t *testing.T) {
	w, _, _ := newWorkerFixture(t, &fakeSynth{})
	_, err := w.HandlePage(context.Background(), pageMessage(t, taskqueue.PageTaskPayload{JobID: "j1", SourceRef: "pdfs/ghost.pdf", Page: 1}))
	if !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("HandlePage error = %v, want blob ErrNotFound", err)
	}
}

func TestHandlePageRejectsUnparseableAudio(t *testing.T) {
	ctx := context.Background()
	synth := &fakeSynth{raw: []byte("this is not audio")}
	w, store, blobs := newWorkerFixture(t, synth)
	ref := seedSourcePDF(t, blobs)
	if err := store.Insert(ctx, &jobs.Job{ID: "j1", OwnerID: "alice", SourceRef: ref, TotalPages: 1, Status: jobs.StatusProcessing, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	_, err := w.HandlePage(ctx, pageMessage(t, taskqueue.PageTaskPayload{JobID: "j1", SourceRef: ref, Page: 1}))
	if !errors.Is(err, audio.ErrNotWAV) {
		t.Fatalf("HandlePage error = %v, want ErrNotWAV", err)
	}

	// Nothing was stored and no page entry was recorded.
	if _, err := blobs.Get(ctx, SegmentKey("j1", 1)); !errors.Is(err, blobstore.ErrNotFound) {
		t.Errorf("segment blob exists after failure")
	}
	job, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if len(job.Pages) != 0 {
		t.Errorf("pages recorded after failure: %v", job.Pages)
	}
}

func TestHandleEmail(t *testing.T) {
	mailer := &recordingMailer{}
	store := jobs.NewStore(docstore.NewMemoryStore())
	w := New(store, blobstore.NewMemoryStore(), &fakeSynth{}, mailer, nil)

	payload, _ := json.Marshal(taskqueue.EmailTaskPayload{JobID: "j1", To: "admin@example.com", Subject: "Review requested", Body: "hi"})
	if _, err := w.HandleEmail(context.Background(), taskqueue.Message{TaskID: "t1", Name: taskqueue.TaskSendEmail, Payload: payload}); err != nil {
		t.Fatalf("HandleEmail error = %v", err)
	}
	if mailer.to != "admin@example.com" || mailer.subject != "Review requested" {
		t.Errorf("mailer got to=%q subject=%q", mailer.to, mailer.subject)
	}

	mailer.err = errors.New("smtp down")
	if _, err := w.HandleEmail(context.Background(), taskqueue.Message{TaskID: "t2", Name: taskqueue.TaskSendEmail, Payload: payload}); err == nil {
		t.Error("HandleEmail swallowed the delivery error")
	}
}
