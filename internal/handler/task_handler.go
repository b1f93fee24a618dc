package handler

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taskhub/internal/model"
	"github.com/hitoshi/taskhub/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	List(ctx context.Context, caller model.Identity, params task.ListParams) (*model.TaskPage, error)
	ListForUser(ctx context.Context, caller model.Identity, userID string, params task.ListParams) (*model.TaskPage, error)
	Get(ctx context.Context, caller model.Identity, id string) (*model.TaskWithUsers, error)
	Create(ctx context.Context, caller model.Identity, input task.CreateInput) (*model.TaskWithUsers, error)
	Update(ctx context.Context, caller model.Identity, id string, input task.UpdateInput) (*model.TaskWithUsers, error)
	Delete(ctx context.Context, caller model.Identity, id string) error
}

// DocumentStore はアップロードされた書類の検証と保存を行う。upload.Storeが実装する。
type DocumentStore interface {
	Validate(files []*multipart.FileHeader) error
	SaveAll(files []*multipart.FileHeader) ([]string, error)
	MaxRequestBytes() int64
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
	store   DocumentStore
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface, store DocumentStore) *TaskHandler {
	return &TaskHandler{
		service: service,
		store:   store,
	}
}

// List は呼び出し元が閲覧できるタスクを一覧する。
// GET /api/tasks?status=&priority=&dueDate=&sortBy=&order=&page=&limit=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), identity, listParamsFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, taskListResponse{
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
		Tasks: toTaskResponses(result.Tasks),
	})
}

// ListForUser は指定ユーザーが担当者のタスクを一覧する。
// GET /api/tasks/user/{id}
func (h *TaskHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	result, err := h.service.ListForUser(r.Context(), identity, chi.URLParam(r, "id"), listParamsFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userTaskListResponse{
		Tasks:       toTaskResponses(result.Tasks),
		CurrentPage: result.Page,
		TotalPages:  result.TotalPages(),
		TotalTasks:  result.Total,
	})
}

// Get はタスクを1件返す。
// GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	t, err := h.service.Get(r.Context(), identity, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Create はタスクを作成する。multipart/form-dataまたはJSONを受け付ける。
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	form, documents, ok := h.readForm(w, r)
	if !ok {
		return
	}
	defer form.cleanup()

	t, err := h.service.Create(r.Context(), identity, form.createInput(documents))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

// Update はタスクを部分更新する。PUTはPATCHの別名として扱う。
// PATCH /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	form, documents, ok := h.readForm(w, r)
	if !ok {
		return
	}
	defer form.cleanup()

	t, err := h.service.Update(r.Context(), identity, chi.URLParam(r, "id"), form.updateInput(documents))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Delete はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Task deleted"})
}

// readForm はリクエストを読み取り、添付書類を検証・保存する。
// 書類の検証はタスクの処理より前に行い、違反は400 INVALID_UPLOADで返す。
func (h *TaskHandler) readForm(w http.ResponseWriter, r *http.Request) (*taskForm, []string, bool) {
	form, err := parseTaskForm(w, r, h.store.MaxRequestBytes())
	if err != nil {
		handleServiceError(w, err)
		return nil, nil, false
	}
	if len(form.files) == 0 {
		return form, nil, true
	}

	if err := h.store.Validate(form.files); err != nil {
		form.cleanup()
		handleServiceError(w, err)
		return nil, nil, false
	}
	documents, err := h.store.SaveAll(form.files)
	if err != nil {
		form.cleanup()
		handleServiceError(w, err)
		return nil, nil, false
	}
	return form, documents, true
}

func listParamsFromRequest(r *http.Request) task.ListParams {
	q := r.URL.Query()
	return task.ListParams{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		DueDate:  q.Get("dueDate"),
		SortBy:   q.Get("sortBy"),
		Order:    q.Get("order"),
		Page:     q.Get("page"),
		Limit:    q.Get("limit"),
	}
}
