package taskqueue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"

	"github.com/pagevoice/pagevoice/internal/taskqueue"
)

func startJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := natstest.DefaultTestOptions
	opts.Port = -1 // random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect to test server: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("JetStream context: %v", err)
	}
	return js
}

func newQueue(t *testing.T) *taskqueue.NATSQueue {
	t.Helper()
	q, err := taskqueue.NewNATSQueue(startJetStream(t), nil)
	if err != nil {
		t.Fatalf("NewNATSQueue: %v", err)
	}
	return q
}

// waitForState polls a task until it reaches want or the deadline passes.
func waitForState(t *testing.T, q *taskqueue.NATSQueue, taskID string, want taskqueue.State) taskqueue.Status {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		st, err := q.Status(context.Background(), taskID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.State == want {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %s", taskID, want)
	return taskqueue.Status{}
}

func TestNATSQueueSubmitRecordsPending(t *testing.T) {
	q := newQueue(t)

	taskID, err := q.Submit(context.Background(), taskqueue.TaskProcessPage,
		taskqueue.PageTaskPayload{JobID: "j1", SourceRef: "pdfs/j1", Page: 3})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st, err := q.Status(context.Background(), taskID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != taskqueue.StatePending {
		t.Errorf("state = %s, want pending", st.State)
	}
}

func TestNATSQueueStatusUnknownTask(t *testing.T) {
	q := newQueue(t)
	if _, err := q.Status(context.Background(), "no-such-task"); !errors.Is(err, taskqueue.ErrTaskNotFound) {
		t.Errorf("Status = %v, want ErrTaskNotFound", err)
	}
}

func TestNATSQueueConsumeSuccess(t *testing.T) {
	q := newQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumeDone := make(chan error, 1)
	go func() {
		consumeDone <- q.Consume(ctx, taskqueue.TaskProcessPage, func(ctx context.Context, msg taskqueue.Message) (any, error) {
			var payload taskqueue.PageTaskPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				return nil, err
			}
			return map[string]int{"page": payload.Page}, nil
		})
	}()

	taskID, err := q.Submit(context.Background(), taskqueue.TaskProcessPage,
		taskqueue.PageTaskPayload{JobID: "j1", SourceRef: "pdfs/j1", Page: 7})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := waitForState(t, q, taskID, taskqueue.StateSuccess)
	var result map[string]int
	if err := json.Unmarshal(st.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result["page"] != 7 {
		t.Errorf("result = %v", result)
	}

	cancel()
	if err := <-consumeDone; err != nil {
		t.Errorf("Consume returned %v", err)
	}
}

func TestNATSQueueConsumeFailureRecorded(t *testing.T) {
	q := newQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = q.Consume(ctx, taskqueue.TaskSendEmail, func(ctx context.Context, msg taskqueue.Message) (any, error) {
			return nil, errors.New("smtp unreachable")
		})
	}()

	taskID, err := q.Submit(context.Background(), taskqueue.TaskSendEmail,
		taskqueue.EmailTaskPayload{JobID: "j1", To: "admin@example.com"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := waitForState(t, q, taskID, taskqueue.StateFailure)
	if st.Error != "smtp unreachable" {
		t.Errorf("error = %q", st.Error)
	}
}

func TestNATSQueueWorkSharedAcrossConsumers(t *testing.T) {
	q := newQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Two consumers in the shared queue group; each task is handled once.
	handled := make(chan string, 8)
	for range 2 {
		go func() {
			_ = q.Consume(ctx, taskqueue.TaskProcessPage, func(ctx context.Context, msg taskqueue.Message) (any, error) {
				handled <- msg.TaskID
				return nil, nil
			})
		}()
	}

	submitted := make(map[string]bool, 4)
	for page := 1; page <= 4; page++ {
		taskID, err := q.Submit(context.Background(), taskqueue.TaskProcessPage,
			taskqueue.PageTaskPayload{JobID: "j1", SourceRef: "pdfs/j1", Page: page})
		if err != nil {
			t.Fatalf("Submit page %d: %v", page, err)
		}
		submitted[taskID] = true
	}

	seen := make(map[string]bool, 4)
	for range 4 {
		select {
		case id := <-handled:
			if seen[id] {
				t.Errorf("task %s delivered twice", id)
			}
			seen[id] = true
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}
	for id := range submitted {
		if !seen[id] {
			t.Errorf("task %s never delivered", id)
		}
	}
}
