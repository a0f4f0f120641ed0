// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
	// RoleTherapist はセラピスト。
	RoleTherapist Role = "therapist"
)

// User はサービス利用ユーザーを表す。
// PasswordHashは認証層のみが参照し、共有データには含めない。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Phone        string
	TherapistID  string // 未割り当ての場合は空文字列
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser は認証情報を除いたユーザーの公開プロジェクション。
// APIレスポンスおよび共有スナップショットにはこの型のみを使用する。
type PublicUser struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	Phone       string    `json:"phone,omitempty"`
	TherapistID string    `json:"therapistId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Sanitize は認証情報を取り除いたPublicUserを返す。
func (u *User) Sanitize() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		Phone:       u.Phone,
		TherapistID: u.TherapistID,
		CreatedAt:   u.CreatedAt,
	}
}

// IsTherapist はユーザーがセラピストロールを持つかを返す。
func (u *User) IsTherapist() bool {
	return u.Role == RoleTherapist
}
