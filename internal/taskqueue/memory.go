package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Submission records one Submit call on the memory queue.
type Submission struct {
	TaskID  string
	Name    string
	Payload json.RawMessage
}

// MemoryQueue is an in-memory Queue for tests. It records submissions and
// can be made to fail after a fixed number of them to exercise
// partial-dispatch handling.
type MemoryQueue struct {
	mu          sync.Mutex
	submissions []Submission
	statuses    map[string]Status

	// failAfter < 0 disables failure injection; otherwise Submit fails
	// once failAfter submissions have succeeded.
	failAfter int
}

// NewMemoryQueue creates an empty memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		statuses:  make(map[string]Status),
		failAfter: -1,
	}
}

// FailAfter makes Submit fail after n successful submissions.
func (q *MemoryQueue) FailAfter(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failAfter = n
}

// Submit records the task as pending.
func (q *MemoryQueue) Submit(ctx context.Context, taskName string, payload any) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.failAfter >= 0 && len(q.submissions) >= q.failAfter {
		return "", fmt.Errorf("task queue unavailable")
	}

	taskID := uuid.New().String()
	q.submissions = append(q.submissions, Submission{TaskID: taskID, Name: taskName, Payload: payloadBytes})
	q.statuses[taskID] = Status{State: StatePending}
	return taskID, nil
}

// Status returns the recorded status for taskID.
func (q *MemoryQueue) Status(ctx context.Context, taskID string) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st, ok := q.statuses[taskID]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return st, nil
}

// SetStatus overrides a task's status (test helper for simulating workers).
func (q *MemoryQueue) SetStatus(taskID string, st Status) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[taskID] = st
}

// Submissions returns a copy of all recorded submissions.
func (q *MemoryQueue) Submissions() []Submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Submission, len(q.submissions))
	copy(out, q.submissions)
	return out
}

// SubmissionsFor returns recorded submissions with the given task name.
func (q *MemoryQueue) SubmissionsFor(taskName string) []Submission {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Submission
	for _, s := range q.submissions {
		if s.Name == taskName {
			out = append(out, s)
		}
	}
	return out
}
