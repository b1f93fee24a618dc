// Package user は管理者向けユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskhub/internal/auth"
	"github.com/hitoshi/taskhub/internal/model"
	"github.com/hitoshi/taskhub/internal/repository"
)

// CreateInput は管理者によるユーザー作成の入力。
type CreateInput struct {
	Email    string
	Password string
	Role     string
}

// UpdateInput はユーザー更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Email    *string
	Role     *string
	Password *string
}

// Service はユーザー管理のサービス層。
// 呼び出し元が管理者であることはミドルウェアで保証されている前提で動作する。
type Service struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{
		userRepo: userRepo,
		now:      time.Now,
	}
}

// Create はユーザーを作成する。ロール省略時はuser。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.User, error) {
	u, err := auth.NewUser(input.Email, input.Password, input.Role)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = s.now().UTC()
	u.UpdatedAt = u.CreatedAt

	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailInUseError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created by admin",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// List はユーザーをページ単位で返す。
func (s *Service) List(ctx context.Context, page, limit int) (*model.UserPage, error) {
	users, err := s.userRepo.List(ctx, model.PageOffset(page, limit), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if users == nil {
		users = []model.User{}
	}
	return &model.UserPage{
		Users: users,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// ListAll は担当者選択用に全ユーザーを返す。
func (s *Service) ListAll(ctx context.Context) ([]model.User, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

// Get はユーザーを1件取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// Update はメールアドレス・ロール・パスワードを更新する。
// パスワードは指定された場合のみハッシュ化し直す。
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*model.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Email != nil {
		email, err := auth.NormalizeEmail(*input.Email)
		if err != nil {
			return nil, err
		}
		u.Email = email
	}
	if input.Role != nil {
		role, err := auth.ParseRole(*input.Role)
		if err != nil {
			return nil, err
		}
		u.Role = role
	}
	if input.Password != nil && *input.Password != "" {
		if err := auth.ValidatePassword(*input.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.userRepo.Update(ctx, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, model.NewEmailInUseError()
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	slog.Info("user updated by admin",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// Delete はユーザーを削除する。
// 作成者または担当者として参照しているタスクもリポジトリ側で同時に削除される。
// 添付書類のファイルはクリーンアップジョブが回収する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	slog.Info("deleting user", slog.String("user_id", id))

	if err := s.userRepo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user deleted", slog.String("user_id", id))
	return nil
}
