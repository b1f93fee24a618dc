package task

import (
	"testing"
	"time"

	"github.com/hitoshi/taskhub/internal/model"
)

func TestParseListParams_Defaults(t *testing.T) {
	q, err := ParseListParams(ListParams{})
	if err != nil {
		t.Fatalf("ParseListParams() error = %v", err)
	}
	if q.SortBy != model.TaskSortCreatedAt || q.Order != model.SortDesc {
		t.Errorf("sort = %s %s, want createdAt desc", q.SortBy, q.Order)
	}
	if q.Page != 1 || q.Limit != 10 {
		t.Errorf("page/limit = %d/%d, want 1/10", q.Page, q.Limit)
	}
	if q.Filter != (model.TaskFilter{}) {
		t.Errorf("filter = %+v, want empty", q.Filter)
	}
}

func TestParseListParams_PageAndLimit(t *testing.T) {
	tests := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"3", "25", 3, 25},
		{"0", "0", 1, 10},
		{"-2", "abc", 1, 10},
		{"2", "1000", 2, model.MaxLimit},
		{"100000000000000000", "100", model.MaxPage, 100},
	}
	for _, tt := range tests {
		q, err := ParseListParams(ListParams{Page: tt.page, Limit: tt.limit})
		if err != nil {
			t.Fatalf("ParseListParams() error = %v", err)
		}
		if q.Page != tt.wantPage || q.Limit != tt.wantLimit {
			t.Errorf("page=%q limit=%q -> %d/%d, want %d/%d", tt.page, tt.limit, q.Page, q.Limit, tt.wantPage, tt.wantLimit)
		}
	}
}

func TestParseListParams_Filters(t *testing.T) {
	q, err := ParseListParams(ListParams{Status: "pending", Priority: "high", DueDate: "2024-03-10", SortBy: "dueDate", Order: "ASC"})
	if err != nil {
		t.Fatalf("ParseListParams() error = %v", err)
	}
	if q.Filter.Status != model.TaskStatusTodo {
		t.Errorf("Status = %q, want todo", q.Filter.Status)
	}
	if q.Filter.Priority != model.TaskPriorityHigh {
		t.Errorf("Priority = %q", q.Filter.Priority)
	}
	wantDue := time.Date(2024, 3, 10, 23, 59, 59, 999999999, time.UTC)
	if q.Filter.DueBefore == nil || !q.Filter.DueBefore.Equal(wantDue) {
		t.Errorf("DueBefore = %v, want %v", q.Filter.DueBefore, wantDue)
	}
	if q.SortBy != model.TaskSortDueDate || q.Order != model.SortAsc {
		t.Errorf("sort = %s %s", q.SortBy, q.Order)
	}
}

func TestParseListParams_RFC3339DueDateIsExact(t *testing.T) {
	q, err := ParseListParams(ListParams{DueDate: "2024-03-10T12:00:00+09:00"})
	if err != nil {
		t.Fatalf("ParseListParams() error = %v", err)
	}
	want := time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)
	if q.Filter.DueBefore == nil || !q.Filter.DueBefore.Equal(want) {
		t.Errorf("DueBefore = %v, want %v", q.Filter.DueBefore, want)
	}
}

func TestParseListParams_InvalidValues(t *testing.T) {
	cases := []ListParams{
		{Status: "blocked"},
		{Priority: "urgent"},
		{DueDate: "next week"},
		{SortBy: "password"},
		{Order: "sideways"},
	}
	for _, p := range cases {
		_, err := ParseListParams(p)
		if apiCode(err) != model.ErrCodeInvalidQuery {
			t.Errorf("ParseListParams(%+v) error = %v, want INVALID_QUERY", p, err)
		}
	}
}

func TestMergeDocuments(t *testing.T) {
	kept, detached := mergeDocuments(
		[]string{"a", "b"},
		[]string{"a"},
		[]string{"c", "d", "e"},
	)
	if len(kept) != 3 || kept[0] != "b" || kept[1] != "c" || kept[2] != "d" {
		t.Errorf("kept = %v, want [b c d]", kept)
	}
	if len(detached) != 2 || detached[0] != "a" || detached[1] != "e" {
		t.Errorf("detached = %v, want [a e]", detached)
	}
}
