// Package auth はパスワード認証とアクセストークンの発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskhub/internal/model"
	"github.com/hitoshi/taskhub/internal/repository"
)

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email    string
	Password string
	Role     string
}

// Service は登録・ログインに関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenManager
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenManager) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
	}
}

// Register は新しいユーザーを作成する。
// メールアドレスが既に使われている場合はEMAIL_IN_USEエラーを返す。
// 同時に同じメールアドレスで登録された場合もストアの一意制約により1件だけが残る。
func (s *Service) Register(ctx context.Context, input RegisterInput) (*model.User, error) {
	user, err := NewUser(input.Email, input.Password, input.Role)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailInUseError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Login はメールアドレスとパスワードを検証し、アクセストークンを返す。
// メールアドレス未登録とパスワード不一致は同じエラーになる。
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil || password == "" {
		return "", model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return "", model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return token, nil
}

// NewUser は入力を検証し、パスワードをハッシュ化した未保存のユーザーを生成する。
// 管理者によるユーザー作成でも同じ規則を使う。
func NewUser(email, password, role string) (*model.User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &model.User{
		ID:           uuid.New().String(),
		Email:        normalized,
		PasswordHash: hash,
		Role:         r,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
