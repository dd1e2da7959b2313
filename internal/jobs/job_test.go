package jobs

import (
	"reflect"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusUploaded, true},
		{StatusUploaded, StatusProcessing, true},
		{StatusProcessing, StatusDone, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusUploaded, true},
		{StatusUploaded, StatusDone, false},
		{StatusDone, StatusProcessing, false},
		{StatusFailed, StatusUploaded, false},
		{StatusCreated, StatusProcessing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransitionReview(t *testing.T) {
	tests := []struct {
		from, to ReviewStatus
		want     bool
	}{
		{ReviewNone, ReviewPending, true},
		{ReviewPending, ReviewApproved, true},
		{ReviewPending, ReviewDeclined, true},
		{ReviewApproved, ReviewDone, true},
		{ReviewNone, ReviewApproved, false},
		{ReviewDeclined, ReviewApproved, false},
		{ReviewDone, ReviewPending, false},
	}
	for _, tt := range tests {
		if got := CanTransitionReview(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransitionReview(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPageKeyRoundTrip(t *testing.T) {
	if got := PageKey(7); got != "page_7" {
		t.Fatalf("PageKey(7) = %q", got)
	}
	n, ok := PageNumber("page_7")
	if !ok || n != 7 {
		t.Fatalf("PageNumber(page_7) = %d, %v", n, ok)
	}
	for _, bad := range []string{"page_", "page_0", "page_-1", "page_x", "cover", "7"} {
		if _, ok := PageNumber(bad); ok {
			t.Errorf("PageNumber(%q) accepted", bad)
		}
	}
}

func TestSortedPageKeysNumericOrder(t *testing.T) {
	pages := map[string]PageEntry{
		"page_10":  {SegmentRef: "a"},
		"page_2":   {SegmentRef: "b"},
		"page_1":   {SegmentRef: "c"},
		"page_21":  {SegmentRef: "d"},
		"not_page": {SegmentRef: "e"},
	}
	got := SortedPageKeys(pages)
	want := []string{"page_1", "page_2", "page_10", "page_21"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortedPageKeys = %v, want %v", got, want)
	}
}

func TestHasTask(t *testing.T) {
	j := &Job{TaskIDs: []string{"t1", "t2"}}
	if !j.HasTask("t2") {
		t.Error("HasTask(t2) = false")
	}
	if j.HasTask("t3") {
		t.Error("HasTask(t3) = true")
	}
}
