// Package model はドメインモデルを定義する。
package model

import "time"

// MaxDocuments は1タスクに添付できる書類の上限数。
const MaxDocuments = 3

// TaskStatus はタスクの進捗状態を表す。
type TaskStatus string

const (
	// TaskStatusTodo は未着手。
	TaskStatusTodo TaskStatus = "todo"
	// TaskStatusInProgress は作業中。
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusDone は完了。
	TaskStatusDone TaskStatus = "done"
)

// legacyStatuses は旧クライアントが送る値から正規の値への対応表。
var legacyStatuses = map[string]TaskStatus{
	"pending":   TaskStatusTodo,
	"completed": TaskStatusDone,
}

// ParseTaskStatus は入力値を正規のTaskStatusに変換する。
// 旧表記（pending, completed）も受け付ける。
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch st := TaskStatus(s); st {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return st, true
	}
	if st, ok := legacyStatuses[s]; ok {
		return st, true
	}
	return "", false
}

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	// TaskPriorityLow は低優先度。
	TaskPriorityLow TaskPriority = "low"
	// TaskPriorityMedium は中優先度。
	TaskPriorityMedium TaskPriority = "medium"
	// TaskPriorityHigh は高優先度。
	TaskPriorityHigh TaskPriority = "high"
)

// ParseTaskPriority は入力値をTaskPriorityに変換する。
func ParseTaskPriority(s string) (TaskPriority, bool) {
	switch p := TaskPriority(s); p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return p, true
	}
	return "", false
}

// Task はタスクを表す。
// CreatedByは作成時に確定し、以後変更されない。
type Task struct {
	ID          string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     *time.Time
	CreatedBy   string
	AssignedTo  string
	Documents   []string // サーバー相対パス。最大MaxDocuments件
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskWithUsers は作成者と担当者のメールアドレスを展開したタスク。
// 参照先ユーザーが存在しない場合は該当フィールドがnilになる。
type TaskWithUsers struct {
	Task
	Creator  *UserRef
	Assignee *UserRef
}

// SortOrder は並び順を表す。
type SortOrder string

const (
	// SortAsc は昇順。
	SortAsc SortOrder = "asc"
	// SortDesc は降順。
	SortDesc SortOrder = "desc"
)

// TaskSortField はタスク一覧の並び替えキーを表す。
// 値はAPIのフィールド名と一致する。
type TaskSortField string

const (
	TaskSortCreatedAt TaskSortField = "createdAt"
	TaskSortUpdatedAt TaskSortField = "updatedAt"
	TaskSortDueDate   TaskSortField = "dueDate"
	TaskSortTitle     TaskSortField = "title"
	TaskSortStatus    TaskSortField = "status"
	TaskSortPriority  TaskSortField = "priority"
)

// ParseTaskSortField は並び替えキーを検証する。
func ParseTaskSortField(s string) (TaskSortField, bool) {
	switch f := TaskSortField(s); f {
	case TaskSortCreatedAt, TaskSortUpdatedAt, TaskSortDueDate,
		TaskSortTitle, TaskSortStatus, TaskSortPriority:
		return f, true
	}
	return "", false
}

// TaskFilter はリポジトリに渡す検索条件。
// 空のフィールドは条件に含めない。
type TaskFilter struct {
	AssignedTo string // 非管理者のスコープ制限。空なら全件
	Status     TaskStatus
	Priority   TaskPriority
	DueBefore  *time.Time // due_date <= DueBefore
}

// TaskQuery はソートとページ窓を含む一覧クエリ。
type TaskQuery struct {
	Filter TaskFilter
	SortBy TaskSortField
	Order  SortOrder
	Page   int // 1始まり
	Limit  int
}

// Offset はスキップ件数 (page-1)*limit を返す。
func (q TaskQuery) Offset() int {
	return PageOffset(q.Page, q.Limit)
}

// TaskPage はページ単位のタスク一覧の結果。
type TaskPage struct {
	Tasks []TaskWithUsers
	Total int
	Page  int
	Limit int
}

// TotalPages は総ページ数を返す。
func (p TaskPage) TotalPages() int {
	return TotalPages(p.Total, p.Limit)
}

// UserPage はページ単位のユーザー一覧の結果。
type UserPage struct {
	Users []User
	Total int
	Page  int
	Limit int
}

// TotalPages は総ページ数を返す。
func (p UserPage) TotalPages() int {
	return TotalPages(p.Total, p.Limit)
}

// TotalPages は総件数とページサイズから総ページ数を算出する。
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
