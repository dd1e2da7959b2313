// Package jobs holds the job model and its persistence: one Job per
// document-to-audio conversion, a closed status state machine, the per-page
// segment map, and the dispatch record linking external task IDs back to
// the job.
package jobs

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Status is the job lifecycle state. All mutations go through guarded
// transitions that name the expected predecessor state.
type Status string

const (
	StatusCreated    Status = "created"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// ReviewStatus tracks the administrative review gate, a separate axis from
// the processing status. The empty value means review was never requested.
type ReviewStatus string

const (
	ReviewNone     ReviewStatus = ""
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewDone     ReviewStatus = "done"
	ReviewDeclined ReviewStatus = "declined"
)

// validTransitions is the closed transition table for Status.
// processing -> uploaded is the compensation path for a failed dispatch.
var validTransitions = map[Status][]Status{
	StatusCreated:    {StatusUploaded},
	StatusUploaded:   {StatusProcessing},
	StatusProcessing: {StatusDone, StatusFailed, StatusUploaded},
}

// validReviewTransitions is the forward-only review transition table.
var validReviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewNone:     {ReviewPending},
	ReviewPending:  {ReviewApproved, ReviewDeclined},
	ReviewApproved: {ReviewDone},
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionReview reports whether from -> to is a legal review transition.
func CanTransitionReview(from, to ReviewStatus) bool {
	for _, next := range validReviewTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PageEntry records the output of one completed page task. Entries are
// created exactly once per page and never mutated afterward.
type PageEntry struct {
	SegmentRef string `json:"segment_ref"`
	SyncRef    string `json:"sync_ref,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Job is one document-to-audio conversion request.
type Job struct {
	ID         string `json:"job_id"`
	OwnerID    string `json:"owner_id"`
	SourceRef  string `json:"source_ref"`
	FileName   string `json:"file_name,omitempty"`
	TotalPages int    `json:"total_pages"`
	Status     Status `json:"status"`

	// Pages maps page_<n> keys to completed segment entries. Keys sort by
	// their numeric suffix; the map may be sparse when only a sub-range
	// was processed.
	Pages map[string]PageEntry `json:"pages,omitempty"`

	// TaskIDs is the dispatch record: every task handle produced by the
	// start operation. Written once, never mutated.
	TaskIDs []string `json:"task_ids,omitempty"`

	ReviewRequired bool         `json:"review_required,omitempty"`
	ReviewStatus   ReviewStatus `json:"review_status,omitempty"`

	AccessToken string     `json:"access_token,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// HasTask reports whether taskID is part of the job's dispatch record.
func (j *Job) HasTask(taskID string) bool {
	for _, id := range j.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// PageKey returns the page map key for page n.
func PageKey(n int) string {
	return fmt.Sprintf("page_%d", n)
}

// PageNumber extracts the numeric suffix from a page key.
func PageNumber(key string) (int, bool) {
	suffix, ok := strings.CutPrefix(key, "page_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// SortedPageKeys returns the page keys ordered by their numeric suffix
// (page_2 before page_10). Keys that do not parse are dropped.
func SortedPageKeys(pages map[string]PageEntry) []string {
	type numbered struct {
		key string
		n   int
	}
	ordered := make([]numbered, 0, len(pages))
	for key := range pages {
		n, ok := PageNumber(key)
		if !ok {
			continue
		}
		ordered = append(ordered, numbered{key: key, n: n})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].n < ordered[j].n })

	keys := make([]string, len(ordered))
	for i, o := range ordered {
		keys[i] = o.key
	}
	return keys
}
