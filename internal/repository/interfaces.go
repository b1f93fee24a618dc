// Package repository はデータ永続化のインターフェースを定義する。
// PostgreSQLとMongoDBの2つの実装を持ち、起動時に選択される。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/taskhub/internal/model"
)

var (
	// ErrNotFound は更新・削除対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrVersionConflict は楽観的ロックのバージョン不一致を表す。
	ErrVersionConflict = errors.New("version conflict")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが既に使われている場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はメールアドレス・ロール・パスワードハッシュを更新する。
	// 対象が存在しない場合はErrNotFound、メール重複時はErrDuplicateEmailを返す。
	Update(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 作成者または担当者として参照しているタスクも同時に削除される。
	DeleteByID(ctx context.Context, id string) error

	// List は作成日時降順でユーザーをページ取得する。
	List(ctx context.Context, offset, limit int) ([]model.User, error)

	// ListAll は全ユーザーを作成日時降順で返す。
	ListAll(ctx context.Context) ([]model.User, error)

	// Count はユーザー総数を返す。
	Count(ctx context.Context) (int, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// FindByID は指定IDのタスクを作成者・担当者付きで取得する。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.TaskWithUsers, error)

	// List は検索条件・ソート・ページ窓に従ってタスクを取得する。
	// 同順位のレコードはID昇順で並ぶ。
	List(ctx context.Context, query model.TaskQuery) ([]model.TaskWithUsers, error)

	// Count はページ窓を適用せずに検索条件に一致する件数を返す。
	Count(ctx context.Context, filter model.TaskFilter) (int, error)

	// Update はタスクを上書きし、Versionを1つ進める。
	// 保存済みのVersionがexpectedVersionと異なる場合はErrVersionConflict、
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, task *model.Task, expectedVersion int) error

	// Delete は指定IDのタスクを削除する。対象が存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error

	// ListDocumentPaths は全タスクが参照している書類パスを返す。
	ListDocumentPaths(ctx context.Context) ([]string, error)
}

// HealthChecker はストアの疎通確認インターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}
