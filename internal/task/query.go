package task

import (
	"strings"
	"time"

	"github.com/hitoshi/taskhub/internal/model"
)

// dateOnlyLayout は日付のみの入力形式。
const dateOnlyLayout = "2006-01-02"

// ListParams は一覧APIのクエリパラメータ（未解釈の文字列）。
type ListParams struct {
	Status   string
	Priority string
	DueDate  string
	SortBy   string
	Order    string
	Page     string
	Limit    string
}

// ParseListParams はクエリパラメータを検証しTaskQueryに変換する。
// 並び替え・絞り込みの不正値はINVALID_QUERY、page/limitの不正値は既定値に戻す。
func ParseListParams(p ListParams) (model.TaskQuery, error) {
	q := model.TaskQuery{
		SortBy: model.TaskSortCreatedAt,
		Order:  model.SortDesc,
	}
	q.Page, q.Limit = model.ParsePageParams(p.Page, p.Limit)

	if p.Status != "" {
		st, ok := model.ParseTaskStatus(strings.TrimSpace(p.Status))
		if !ok {
			return q, model.NewInvalidQueryError("Invalid status filter")
		}
		q.Filter.Status = st
	}

	if p.Priority != "" {
		pr, ok := model.ParseTaskPriority(strings.TrimSpace(p.Priority))
		if !ok {
			return q, model.NewInvalidQueryError("Invalid priority filter")
		}
		q.Filter.Priority = pr
	}

	if p.DueDate != "" {
		t, dateOnly, err := parseDate(p.DueDate)
		if err != nil {
			return q, model.NewInvalidQueryError("Invalid dueDate filter")
		}
		// 日付のみの指定はその日の終わりまでを含む
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		q.Filter.DueBefore = &t
	}

	if p.SortBy != "" {
		f, ok := model.ParseTaskSortField(strings.TrimSpace(p.SortBy))
		if !ok {
			return q, model.NewInvalidQueryError("Invalid sortBy field")
		}
		q.SortBy = f
	}

	if p.Order != "" {
		switch model.SortOrder(strings.ToLower(strings.TrimSpace(p.Order))) {
		case model.SortAsc:
			q.Order = model.SortAsc
		case model.SortDesc:
			q.Order = model.SortDesc
		default:
			return q, model.NewInvalidQueryError("Invalid order, expected asc or desc")
		}
	}

	return q, nil
}

// parseDate はRFC 3339または YYYY-MM-DD を解釈する。結果はUTC。
func parseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateOnlyLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}
