// Package memstore はテスト用のインメモリリポジトリを提供する。
// PostgreSQL/MongoDB実装と同じ契約（nil返却、センチネルエラー、ID昇順のタイブレーク）に従う。
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hitoshi/taskhub/internal/model"
	"github.com/hitoshi/taskhub/internal/repository"
)

// Store はユーザーとタスクを保持する。UsersとTasksは同じStoreを共有する。
type Store struct {
	mu    sync.Mutex
	users map[string]model.User
	tasks map[string]model.Task
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		users: make(map[string]model.User),
		tasks: make(map[string]model.Task),
	}
}

// Users はUserRepositoryを返す。
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Tasks はTaskRepositoryを返す。
func (s *Store) Tasks() *TaskRepo { return &TaskRepo{s: s} }

// UserRepo はUserRepositoryのインメモリ実装。
type UserRepo struct{ s *Store }

func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *UserRepo) Update(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, u := range r.s.users {
		if id != user.ID && u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *UserRepo) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	for tid, t := range r.s.tasks {
		if t.CreatedBy == id || t.AssignedTo == id {
			delete(r.s.tasks, tid)
		}
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]model.User, error) {
	all, _ := r.ListAll(ctx)
	return window(all, offset, limit), nil
}

func (r *UserRepo) ListAll(_ context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r *UserRepo) Count(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.users), nil
}

// TaskRepo はTaskRepositoryのインメモリ実装。
type TaskRepo struct{ s *Store }

func (r *TaskRepo) Create(_ context.Context, task *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := *task
	t.Documents = append([]string{}, task.Documents...)
	r.s.tasks[t.ID] = t
	return nil
}

func (r *TaskRepo) FindByID(_ context.Context, id string) (*model.TaskWithUsers, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, nil
	}
	tw := r.expand(t)
	return &tw, nil
}

func (r *TaskRepo) List(_ context.Context, query model.TaskQuery) ([]model.TaskWithUsers, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := r.filter(query.Filter)
	sort.Slice(matched, func(i, j int) bool {
		c := compareTasks(matched[i], matched[j], query.SortBy)
		if c == 0 {
			return matched[i].ID < matched[j].ID
		}
		if query.Order == model.SortAsc {
			return c < 0
		}
		return c > 0
	})

	page := window(matched, query.Offset(), query.Limit)
	out := make([]model.TaskWithUsers, 0, len(page))
	for _, t := range page {
		out = append(out, r.expand(t))
	}
	return out, nil
}

func (r *TaskRepo) Count(_ context.Context, filter model.TaskFilter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.filter(filter)), nil
}

func (r *TaskRepo) Update(_ context.Context, task *model.Task, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.tasks[task.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	task.Version = expectedVersion + 1
	t := *task
	t.CreatedBy = current.CreatedBy
	t.CreatedAt = current.CreatedAt
	t.Documents = append([]string{}, task.Documents...)
	r.s.tasks[t.ID] = t
	return nil
}

func (r *TaskRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tasks, id)
	return nil
}

func (r *TaskRepo) ListDocumentPaths(_ context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[string]struct{})
	var paths []string
	for _, t := range r.s.tasks {
		for _, p := range t.Documents {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// filter はロック取得済みの状態で条件に一致するタスクを返す。
func (r *TaskRepo) filter(f model.TaskFilter) []model.Task {
	var out []model.Task
	for _, t := range r.s.tasks {
		if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.DueBefore != nil && (t.DueDate == nil || t.DueDate.After(*f.DueBefore)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// expand は作成者・担当者のメールアドレスを展開する。
func (r *TaskRepo) expand(t model.Task) model.TaskWithUsers {
	t.Documents = append([]string{}, t.Documents...)
	tw := model.TaskWithUsers{Task: t}
	if u, ok := r.s.users[t.CreatedBy]; ok {
		tw.Creator = &model.UserRef{ID: u.ID, Email: u.Email}
	}
	if u, ok := r.s.users[t.AssignedTo]; ok {
		tw.Assignee = &model.UserRef{ID: u.ID, Email: u.Email}
	}
	return tw
}

// compareTasks は並び替えキーで2件を比較する。期限なしは最大値扱いで、
// 昇順では末尾、降順では先頭に並ぶ。
func compareTasks(a, b model.Task, field model.TaskSortField) int {
	switch field {
	case model.TaskSortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case model.TaskSortDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return 1
		case b.DueDate == nil:
			return -1
		}
		return a.DueDate.Compare(*b.DueDate)
	case model.TaskSortTitle:
		return strings.Compare(a.Title, b.Title)
	case model.TaskSortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case model.TaskSortPriority:
		return strings.Compare(string(a.Priority), string(b.Priority))
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// compile-time interface checks
var (
	_ repository.UserRepository = (*UserRepo)(nil)
	_ repository.TaskRepository = (*TaskRepo)(nil)
)
