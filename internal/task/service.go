// Package task はタスクの一覧・作成・更新・削除のドメインロジックを提供する。
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/taskhub/internal/metrics"
	"github.com/hitoshi/taskhub/internal/model"
	"github.com/hitoshi/taskhub/internal/repository"
	"github.com/hitoshi/taskhub/internal/security"
)

// 入力値の上限。
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 5000
)

// DocumentRemover は書類ファイルの削除インターフェース。
type DocumentRemover interface {
	Remove(paths []string)
}

// CreateInput はタスク作成の入力。Documentsは保存済みの書類パス。
type CreateInput struct {
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     string
	AssignedTo  string
	Documents   []string
}

// UpdateInput はタスク部分更新の入力。nilのフィールドは変更しない。
// Documentsは今回保存した書類、RemoveDocumentsは外す既存書類のパス。
type UpdateInput struct {
	Title           *string
	Description     *string
	Status          *string
	Priority        *string
	DueDate         *string
	AssignedTo      *string
	Documents       []string
	RemoveDocuments []string
	Version         *int
}

// Service はタスク管理のサービス層。
type Service struct {
	taskRepo  repository.TaskRepository
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizer
	files     DocumentRemover
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	taskRepo repository.TaskRepository,
	userRepo repository.UserRepository,
	sanitizer security.TextSanitizer,
	files DocumentRemover,
	mc metrics.MetricsCollector,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		taskRepo:  taskRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		files:     files,
		metrics:   mc,
		now:       time.Now,
	}
}

// List は呼び出し元のスコープでタスクを一覧する。
// 管理者は全件、一般ユーザーは自分が担当者のタスクのみを対象にする。
func (s *Service) List(ctx context.Context, caller model.Identity, params ListParams) (*model.TaskPage, error) {
	query, err := ParseListParams(params)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		query.Filter.AssignedTo = caller.UserID
	}
	return s.page(ctx, query)
}

// ListForUser は指定ユーザーが担当者のタスクを一覧する（管理者専用）。
func (s *Service) ListForUser(ctx context.Context, caller model.Identity, userID string, params ListParams) (*model.TaskPage, error) {
	if !caller.IsAdmin() {
		return nil, model.NewForbiddenError("Admin access required")
	}

	query, err := ParseListParams(params)
	if err != nil {
		return nil, err
	}

	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}

	query.Filter.AssignedTo = userID
	return s.page(ctx, query)
}

// page は一覧と総件数を別々に取得してページ結果を組み立てる。
func (s *Service) page(ctx context.Context, query model.TaskQuery) (*model.TaskPage, error) {
	tasks, err := s.taskRepo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	total, err := s.taskRepo.Count(ctx, query.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	if tasks == nil {
		tasks = []model.TaskWithUsers{}
	}
	return &model.TaskPage{
		Tasks: tasks,
		Total: total,
		Page:  query.Page,
		Limit: query.Limit,
	}, nil
}

// Get はタスクを1件取得する。
// 存在しない場合は404、一般ユーザーが他人のタスクを指定した場合は403を返す。
func (s *Service) Get(ctx context.Context, caller model.Identity, id string) (*model.TaskWithUsers, error) {
	return s.load(ctx, caller, id)
}

// Create はタスクを作成する。
// 作成者は常に呼び出し元。担当者は管理者のみ指定でき、省略時は作成者になる。
// 失敗した場合は添付済みの書類ファイルを削除する。
func (s *Service) Create(ctx context.Context, caller model.Identity, input CreateInput) (_ *model.TaskWithUsers, err error) {
	committed := false
	defer func() {
		if err != nil && !committed {
			s.removeFiles(input.Documents)
		}
	}()

	title, err := s.cleanTitle(input.Title)
	if err != nil {
		return nil, err
	}
	description, err := s.cleanDescription(input.Description)
	if err != nil {
		return nil, err
	}

	status := model.TaskStatusTodo
	if input.Status != "" {
		st, ok := model.ParseTaskStatus(input.Status)
		if !ok {
			return nil, model.NewValidationError("Status must be todo, in-progress or done")
		}
		status = st
	}

	priority := model.TaskPriorityMedium
	if input.Priority != "" {
		pr, ok := model.ParseTaskPriority(input.Priority)
		if !ok {
			return nil, model.NewValidationError("Priority must be low, medium or high")
		}
		priority = pr
	}

	dueDate, err := parseDueDate(input.DueDate)
	if err != nil {
		return nil, err
	}

	if len(input.Documents) > model.MaxDocuments {
		return nil, model.NewInvalidUploadError(fmt.Sprintf("A task can have at most %d documents", model.MaxDocuments))
	}

	assignee := caller.UserID
	if caller.IsAdmin() && strings.TrimSpace(input.AssignedTo) != "" {
		assignee = strings.TrimSpace(input.AssignedTo)
		if err := s.ensureUserExists(ctx, assignee); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	t := &model.Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Status:      status,
		Priority:    priority,
		DueDate:     dueDate,
		CreatedBy:   caller.UserID,
		AssignedTo:  assignee,
		Documents:   append([]string{}, input.Documents...),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.taskRepo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	committed = true

	s.metrics.RecordTaskOperation(metrics.TaskOpCreate)
	slog.Info("task created",
		slog.String("task_id", t.ID),
		slog.String("user_id", caller.UserID),
		slog.String("assigned_to", t.AssignedTo),
		slog.Int("documents", len(t.Documents)),
	)

	return s.reload(ctx, t.ID)
}

// Update はタスクを部分更新する。
// 書類は「外す指定の除去 → 新規分の追加 → 先頭からMaxDocuments件に切り詰め」の順で決まる。
// 外した書類と上限からあふれた新規書類は、保存成功後にディスクから削除する。
func (s *Service) Update(ctx context.Context, caller model.Identity, id string, input UpdateInput) (_ *model.TaskWithUsers, err error) {
	committed := false
	defer func() {
		if err != nil && !committed {
			s.removeFiles(input.Documents)
		}
	}()

	existing, err := s.load(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if input.Version != nil && *input.Version != existing.Version {
		return nil, model.NewVersionConflictError()
	}

	t := existing.Task
	if err := s.applyScalars(ctx, caller, &t, input); err != nil {
		return nil, err
	}

	docs, detached := mergeDocuments(existing.Documents, input.RemoveDocuments, input.Documents)
	t.Documents = docs
	t.UpdatedAt = s.now().UTC()

	if err := s.taskRepo.Update(ctx, &t, existing.Version); err != nil {
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, model.NewVersionConflictError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewTaskNotFoundError()
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	committed = true

	s.removeFiles(detached)

	s.metrics.RecordTaskOperation(metrics.TaskOpUpdate)
	slog.Info("task updated",
		slog.String("task_id", t.ID),
		slog.String("user_id", caller.UserID),
		slog.Int("version", t.Version),
		slog.Int("documents", len(t.Documents)),
		slog.Int("documents_detached", len(detached)),
	)

	return s.reload(ctx, t.ID)
}

// Delete はタスクを削除し、添付書類のファイルも削除する。
func (s *Service) Delete(ctx context.Context, caller model.Identity, id string) error {
	existing, err := s.load(ctx, caller, id)
	if err != nil {
		return err
	}

	if err := s.taskRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewTaskNotFoundError()
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	s.removeFiles(existing.Documents)

	s.metrics.RecordTaskOperation(metrics.TaskOpDelete)
	slog.Info("task deleted",
		slog.String("task_id", id),
		slog.String("user_id", caller.UserID),
	)
	return nil
}

// load はタスクを取得し、呼び出し元が操作できるかを確認する。
func (s *Service) load(ctx context.Context, caller model.Identity, id string) (*model.TaskWithUsers, error) {
	t, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError()
	}
	if !caller.IsAdmin() && t.AssignedTo != caller.UserID {
		return nil, model.NewForbiddenError("You do not have access to this task")
	}
	return t, nil
}

// reload は書き込み後のタスクを作成者・担当者付きで取得し直す。
func (s *Service) reload(ctx context.Context, id string) (*model.TaskWithUsers, error) {
	t, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload task: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return t, nil
}

// applyScalars は指定されたスカラー項目でタスクを上書きする。
func (s *Service) applyScalars(ctx context.Context, caller model.Identity, t *model.Task, input UpdateInput) error {
	if input.Title != nil {
		title, err := s.cleanTitle(*input.Title)
		if err != nil {
			return err
		}
		t.Title = title
	}
	if input.Description != nil {
		description, err := s.cleanDescription(*input.Description)
		if err != nil {
			return err
		}
		t.Description = description
	}
	if input.Status != nil {
		st, ok := model.ParseTaskStatus(*input.Status)
		if !ok {
			return model.NewValidationError("Status must be todo, in-progress or done")
		}
		t.Status = st
	}
	if input.Priority != nil {
		pr, ok := model.ParseTaskPriority(*input.Priority)
		if !ok {
			return model.NewValidationError("Priority must be low, medium or high")
		}
		t.Priority = pr
	}
	if input.DueDate != nil {
		due, err := parseDueDate(*input.DueDate)
		if err != nil {
			return err
		}
		t.DueDate = due
	}
	if input.AssignedTo != nil {
		assignee := strings.TrimSpace(*input.AssignedTo)
		switch {
		case assignee == "" || assignee == t.AssignedTo:
		case !caller.IsAdmin():
			if assignee != caller.UserID {
				return model.NewForbiddenError("Only admins can reassign tasks")
			}
			t.AssignedTo = assignee
		default:
			if err := s.ensureUserExists(ctx, assignee); err != nil {
				return err
			}
			t.AssignedTo = assignee
		}
	}
	return nil
}

// mergeDocuments は更新後の書類一覧と、ディスクから削除すべきパスを返す。
// 既存の順序を保ったまま新規分を後ろに足し、先頭からMaxDocuments件を残す。
func mergeDocuments(existing, remove, added []string) (kept, detached []string) {
	removeSet := make(map[string]struct{}, len(remove))
	for _, p := range remove {
		removeSet[p] = struct{}{}
	}

	combined := make([]string, 0, len(existing)+len(added))
	for _, p := range existing {
		if _, ok := removeSet[p]; ok {
			detached = append(detached, p)
			continue
		}
		combined = append(combined, p)
	}
	combined = append(combined, added...)

	if len(combined) > model.MaxDocuments {
		detached = append(detached, combined[model.MaxDocuments:]...)
		combined = combined[:model.MaxDocuments]
	}
	return combined, detached
}

func (s *Service) cleanTitle(raw string) (string, error) {
	title := s.sanitizer.Sanitize(raw)
	if title == "" {
		return "", model.NewValidationError("Title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", model.NewValidationError(fmt.Sprintf("Title must be at most %d characters", MaxTitleLength))
	}
	return title, nil
}

func (s *Service) cleanDescription(raw string) (string, error) {
	description := s.sanitizer.Sanitize(raw)
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return "", model.NewValidationError(fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength))
	}
	return description, nil
}

func (s *Service) ensureUserExists(ctx context.Context, id string) error {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find assignee: %w", err)
	}
	if u == nil {
		return model.NewValidationError("Assigned user does not exist")
	}
	return nil
}

func (s *Service) removeFiles(paths []string) {
	if len(paths) > 0 && s.files != nil {
		s.files.Remove(paths)
	}
}

// parseDueDate は期限を解釈する。空文字列は期限なし。日付のみの場合はUTCの0時。
func parseDueDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, _, err := parseDate(raw)
	if err != nil {
		return nil, model.NewValidationError("dueDate must be YYYY-MM-DD or RFC 3339")
	}
	return &t, nil
}
