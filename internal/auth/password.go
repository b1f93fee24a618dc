package auth

import (
	"fmt"
	"strings"

	"github.com/hitoshi/taskhub/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword はハッシュとパスワードが一致するかを返す。
func CheckPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizeEmail は前後の空白を除去し小文字化したメールアドレスを返す。
// 形式が不正な場合は検証エラーを返す。
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", model.NewValidationError("Email is required")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", model.NewValidationError("Email is invalid")
	}
	return email, nil
}

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) error {
	if password == "" {
		return model.NewValidationError("Password is required")
	}
	if len([]rune(password)) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	// bcryptは72バイトを超える入力を扱えない
	if len(password) > 72 {
		return model.NewValidationError("Password is too long")
	}
	return nil
}

// ParseRole は入力のロールを解釈する。空の場合はuserとして扱う。
func ParseRole(role string) (model.Role, error) {
	if role == "" {
		return model.RoleUser, nil
	}
	r := model.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		return "", model.NewValidationError("Role must be user or admin")
	}
	return r, nil
}
