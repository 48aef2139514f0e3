// Package model はドメインモデルを定義する。
package model

import "time"

// User はバックエンドに登録されたアカウントを表す。
// PasswordHashはbcryptハッシュで、APIレスポンスには含めない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は認証済みユーザーとしてクライアントに渡される識別情報を表す。
// 認証サービスがサインイン成功時に生成し、サインアウトまで保持される。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Identity はユーザーから公開可能な識別情報を取り出す。
func (u *User) Identity() *Identity {
	return &Identity{ID: u.ID, Email: u.Email}
}

// Session はユーザーのログインセッションを表す。
// IDはBearerトークンとしてクライアントに渡される。
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
