// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限種別を表す。
type Role string

const (
	// RoleUser は一般ユーザー。自分に割り当てられたタスクのみ扱える。
	RoleUser Role = "user"
	// RoleAdmin は管理者。全タスクとユーザー管理を扱える。
	RoleAdmin Role = "admin"
)

// Valid はロールが定義済みの値かを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User はサービス利用ユーザーを表す。
// PasswordHashはAPIレスポンスに含めない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin は管理者かどうかを返す。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserRef はタスクから参照されるユーザーの展開表現。
type UserRef struct {
	ID    string
	Email string
}

// Identity はアクセストークンから復元した認証済みの呼び出し元を表す。
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin は呼び出し元が管理者かどうかを返す。
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
