package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/taskhub/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// taskSelect はタスクと作成者・担当者のメールアドレスをJOINして取得するベースクエリ。
const taskSelect = `
	SELECT t.id, t.title, t.description, t.status, t.priority, t.due_date,
	       t.created_by, t.assigned_to, t.documents, t.version,
	       t.created_at, t.updated_at,
	       cu.email, au.email
	FROM tasks t
	LEFT JOIN users cu ON cu.id = t.created_by
	LEFT JOIN users au ON au.id = t.assigned_to`

// sortColumns はAPIの並び替えキーとカラムの対応。
// 入力値をSQLに埋め込まないよう、この表にあるカラム名のみを使う。
var sortColumns = map[model.TaskSortField]string{
	model.TaskSortCreatedAt: "t.created_at",
	model.TaskSortUpdatedAt: "t.updated_at",
	model.TaskSortDueDate:   "t.due_date",
	model.TaskSortTitle:     "t.title",
	model.TaskSortStatus:    "t.status",
	model.TaskSortPriority:  "t.priority",
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, status, priority, due_date,
		                    created_by, assigned_to, documents, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		nullTime(task.DueDate), task.CreatedBy, task.AssignedTo,
		pq.Array(documentsOrEmpty(task.Documents)), task.Version,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを作成者・担当者付きで取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.TaskWithUsers, error) {
	if !isUUID(id) {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}
	return task, nil
}

// List は検索条件・ソート・ページ窓に従ってタスクを取得する。
func (r *PostgresTaskRepo) List(ctx context.Context, query model.TaskQuery) ([]model.TaskWithUsers, error) {
	where, args := buildTaskWhere(query.Filter)
	argIndex := len(args) + 1

	q := taskSelect + where + buildTaskOrderBy(query.SortBy, query.Order)
	q += fmt.Sprintf(" OFFSET $%d LIMIT $%d", argIndex, argIndex+1)
	args = append(args, query.Offset(), query.Limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.TaskWithUsers{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

// Count はページ窓を適用せずに検索条件に一致する件数を返す。
func (r *PostgresTaskRepo) Count(ctx context.Context, filter model.TaskFilter) (int, error) {
	where, args := buildTaskWhere(filter)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// Update はタスクを上書きし、Versionを1つ進める。
// WHERE句でバージョンを照合し、読み取り後に別リクエストが更新した場合は競合として扱う。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task, expectedVersion int) error {
	if !isUUID(task.ID) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks
		 SET title = $3, description = $4, status = $5, priority = $6, due_date = $7,
		     assigned_to = $8, documents = $9, version = version + 1, updated_at = $10
		 WHERE id = $1 AND version = $2`,
		task.ID, expectedVersion,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		nullTime(task.DueDate), task.AssignedTo,
		pq.Array(documentsOrEmpty(task.Documents)), task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		// 存在しないのか、バージョンが進んだのかを区別する
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, task.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check task existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	task.Version = expectedVersion + 1
	return nil
}

// Delete は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return requireAffected(result)
}

// ListDocumentPaths は全タスクが参照している書類パスを返す。
func (r *PostgresTaskRepo) ListDocumentPaths(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT unnest(documents) FROM tasks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list document paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan document path: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document paths: %w", err)
	}
	return paths, nil
}

// buildTaskWhere は検索条件からWHERE句とバインド引数を構築する。
// 条件がない場合は空文字列を返す。
func buildTaskWhere(filter model.TaskFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.AssignedTo != "" {
		if !isUUID(filter.AssignedTo) {
			// 不正なIDに一致するタスクは存在しない
			return " WHERE false", nil
		}
		add("t.assigned_to = $%d", filter.AssignedTo)
	}
	if filter.Status != "" {
		add("t.status = $%d", string(filter.Status))
	}
	if filter.Priority != "" {
		add("t.priority = $%d", string(filter.Priority))
	}
	if filter.DueBefore != nil {
		add("t.due_date <= $%d", *filter.DueBefore)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildTaskOrderBy はORDER BY句を構築する。未知のキーは作成日時降順にする。
// NULL（期限なし）は昇順で末尾、降順で先頭に並べ、MongoDB実装と順序を揃える。
func buildTaskOrderBy(field model.TaskSortField, order model.SortOrder) string {
	col, ok := sortColumns[field]
	if !ok {
		col = sortColumns[model.TaskSortCreatedAt]
	}
	dir := "DESC NULLS FIRST"
	if order == model.SortAsc {
		dir = "ASC NULLS LAST"
	}
	return fmt.Sprintf(" ORDER BY %s %s, t.id ASC", col, dir)
}

func scanTask(row rowScanner) (*model.TaskWithUsers, error) {
	var (
		t             model.TaskWithUsers
		status, prio  string
		dueDate       sql.NullTime
		docs          pq.StringArray
		creatorEmail  sql.NullString
		assigneeEmail sql.NullString
	)
	if err := row.Scan(
		&t.ID, &t.Title, &t.Description, &status, &prio, &dueDate,
		&t.CreatedBy, &t.AssignedTo, &docs, &t.Version,
		&t.CreatedAt, &t.UpdatedAt,
		&creatorEmail, &assigneeEmail,
	); err != nil {
		return nil, err
	}

	t.Status = model.TaskStatus(status)
	t.Priority = model.TaskPriority(prio)
	if dueDate.Valid {
		d := dueDate.Time
		t.DueDate = &d
	}
	t.Documents = []string(docs)
	if creatorEmail.Valid {
		t.Creator = &model.UserRef{ID: t.CreatedBy, Email: creatorEmail.String}
	}
	if assigneeEmail.Valid {
		t.Assignee = &model.UserRef{ID: t.AssignedTo, Email: assigneeEmail.String}
	}
	return &t, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func documentsOrEmpty(docs []string) []string {
	if docs == nil {
		return []string{}
	}
	return docs
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
