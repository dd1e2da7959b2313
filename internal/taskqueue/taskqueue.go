// Package taskqueue provides asynchronous task dispatch for page processing
// and notification delivery. Submitting returns an opaque task ID whose
// lifecycle (pending/started/success/failure) can be polled; the work itself
// runs out of process on whatever workers consume the queue.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
)

// Task names understood by the page workers.
const (
	TaskProcessPage = "process_page"
	TaskSendEmail   = "send_email"
)

// ErrTaskNotFound is returned when a task ID has no recorded state.
var ErrTaskNotFound = errors.New("task not found")

// State is the lifecycle state of a submitted task.
type State string

const (
	StatePending State = "pending"
	StateStarted State = "started"
	StateSuccess State = "success"
	StateFailure State = "failure"
)

// Status reports a task's current state and, once finished, its result.
type Status struct {
	State  State           `json:"state"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Message is a task as delivered to a consumer.
type Message struct {
	TaskID  string          `json:"task_id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one task message. The returned result is recorded on
// success; a non-nil error records a failure.
type Handler func(ctx context.Context, msg Message) (result any, err error)

// Queue submits tasks and reports their status.
type Queue interface {
	// Submit enqueues one task and returns its ID. The task is recorded
	// as pending before Submit returns.
	Submit(ctx context.Context, taskName string, payload any) (string, error)

	// Status returns the task's current status, or ErrTaskNotFound.
	Status(ctx context.Context, taskID string) (Status, error)
}

// PageTaskPayload is the unit of work for one page.
type PageTaskPayload struct {
	JobID     string `json:"job_id"`
	SourceRef string `json:"source_ref"`
	Page      int    `json:"page"`
}

// EmailTaskPayload asks the notification consumer to send one email.
type EmailTaskPayload struct {
	JobID   string `json:"job_id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
