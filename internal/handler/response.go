package handler

import (
	"time"

	"github.com/hitoshi/taskhub/internal/model"
)

// userRefResponse はタスクに展開される作成者・担当者。
type userRefResponse struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

// taskResponse はタスクのAPIレスポンス。
// 参照先ユーザーが削除済みの場合、createdBy/assignedToはnullになる。
type taskResponse struct {
	ID          string           `json:"_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	Priority    string           `json:"priority"`
	DueDate     *time.Time       `json:"dueDate"`
	CreatedBy   *userRefResponse `json:"createdBy"`
	AssignedTo  *userRefResponse `json:"assignedTo"`
	Documents   []string         `json:"documents"`
	Version     int              `json:"version"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// taskListResponse は GET /api/tasks のレスポンス。
type taskListResponse struct {
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Tasks []taskResponse `json:"tasks"`
}

// userTaskListResponse は GET /api/tasks/user/{id} のレスポンス。
type userTaskListResponse struct {
	Tasks       []taskResponse `json:"tasks"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	TotalTasks  int            `json:"totalTasks"`
}

// userResponse はユーザーのAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID        string    `json:"_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// userListResponse は GET /api/users のレスポンス。
type userListResponse struct {
	Users       []userResponse `json:"users"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	TotalUsers  int            `json:"totalUsers"`
}

// userCreatedResponse は POST /api/users のレスポンス。
type userCreatedResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

func toUserRefResponse(ref *model.UserRef) *userRefResponse {
	if ref == nil {
		return nil
	}
	return &userRefResponse{ID: ref.ID, Email: ref.Email}
}

func toTaskResponse(t *model.TaskWithUsers) taskResponse {
	docs := t.Documents
	if docs == nil {
		docs = []string{}
	}
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		CreatedBy:   toUserRefResponse(t.Creator),
		AssignedTo:  toUserRefResponse(t.Assignee),
		Documents:   docs,
		Version:     t.Version,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTaskResponses(tasks []model.TaskWithUsers) []taskResponse {
	out := make([]taskResponse, len(tasks))
	for i := range tasks {
		out[i] = toTaskResponse(&tasks[i])
	}
	return out
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toUserResponses(users []model.User) []userResponse {
	out := make([]userResponse, len(users))
	for i := range users {
		out[i] = toUserResponse(&users[i])
	}
	return out
}
