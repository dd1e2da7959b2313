package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	streamName     = "TASKS"
	subjectPrefix  = "tasks."
	statusBucket   = "task-status"
	consumerQueue  = "page-workers"
	maxTaskRetries = 3
	defaultAckWait = 5 * time.Minute
)

// NATSQueue implements Queue on NATS JetStream. Task messages are published
// to tasks.<name> subjects; task state lives in a JetStream KV bucket keyed
// by task ID, written by both the submitter (pending) and the consumers
// (started/success/failure).
type NATSQueue struct {
	js     nats.JetStreamContext
	kv     nats.KeyValue
	logger *slog.Logger
}

// NewNATSQueue creates (or binds to) the task stream and status bucket.
func NewNATSQueue(js nats.JetStreamContext, logger *slog.Logger) (*NATSQueue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return nil, fmt.Errorf("create task stream: %w", err)
	}

	kv, err := js.KeyValue(statusBucket)
	if err != nil {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      statusBucket,
			Description: "Task lifecycle state keyed by task ID.",
		})
		if err != nil {
			return nil, fmt.Errorf("create status bucket: %w", err)
		}
	}

	return &NATSQueue{js: js, kv: kv, logger: logger}, nil
}

// Submit publishes one task and records it as pending.
func (q *NATSQueue) Submit(ctx context.Context, taskName string, payload any) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	taskID := uuid.New().String()
	msg := Message{TaskID: taskID, Name: taskName, Payload: payloadBytes}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal task message: %w", err)
	}

	// Record pending state first so a status poll racing the publish
	// never sees a missing task.
	if err := q.setStatus(taskID, Status{State: StatePending}); err != nil {
		return "", err
	}

	if _, err := q.js.Publish(subjectPrefix+taskName, data, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("publish task %s: %w", taskName, err)
	}

	q.logger.Debug("task submitted", "task_id", taskID, "name", taskName)
	return taskID, nil
}

// Status returns the recorded task status.
func (q *NATSQueue) Status(ctx context.Context, taskID string) (Status, error) {
	entry, err := q.kv.Get(taskID)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return Status{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return Status{}, fmt.Errorf("get task status %s: %w", taskID, err)
	}

	var st Status
	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		return Status{}, fmt.Errorf("decode task status %s: %w", taskID, err)
	}
	return st, nil
}

// Consume subscribes to tasks.<name> in the shared worker queue group and
// runs handler for each delivered message. Blocks until ctx is cancelled.
func (q *NATSQueue) Consume(ctx context.Context, taskName string, handler Handler) error {
	sub, err := q.js.QueueSubscribe(subjectPrefix+taskName, consumerQueue, func(m *nats.Msg) {
		q.handle(ctx, m, handler)
	}, nats.ManualAck(), nats.MaxDeliver(maxTaskRetries), nats.AckWait(defaultAckWait))
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", taskName, err)
	}

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return nil
}

func (q *NATSQueue) handle(ctx context.Context, m *nats.Msg, handler Handler) {
	var msg Message
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		q.logger.Error("undecodable task message dropped", "error", err)
		_ = m.Term()
		return
	}

	if err := q.setStatus(msg.TaskID, Status{State: StateStarted}); err != nil {
		q.logger.Warn("failed to mark task started", "task_id", msg.TaskID, "error", err)
	}

	result, err := handler(ctx, msg)
	if err != nil {
		q.logger.Warn("task failed", "task_id", msg.TaskID, "name", msg.Name, "error", err)
		_ = q.setStatus(msg.TaskID, Status{State: StateFailure, Error: err.Error()})
		// Nak so the queue's own retry policy redelivers up to MaxDeliver.
		_ = m.Nak()
		return
	}

	st := Status{State: StateSuccess}
	if result != nil {
		if data, marshalErr := json.Marshal(result); marshalErr == nil {
			st.Result = data
		}
	}
	if err := q.setStatus(msg.TaskID, st); err != nil {
		q.logger.Warn("failed to mark task finished", "task_id", msg.TaskID, "error", err)
	}
	_ = m.Ack()
}

func (q *NATSQueue) setStatus(taskID string, st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal task status: %w", err)
	}
	if _, err := q.kv.Put(taskID, data); err != nil {
		return fmt.Errorf("record task status %s: %w", taskID, err)
	}
	return nil
}
