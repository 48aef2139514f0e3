// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/msgbox/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別しない）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するsessions、messagesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// MessageRepository はメッセージドキュメントの永続化インターフェース。
// すべての操作はオーナーIDで絞り込まれ、他ユーザーのメッセージには作用しない。
type MessageRepository interface {
	// ListByOwner はオーナーの全メッセージを取得する。
	// 並び順は指定しない（ストアの自然順）。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Message, error)

	// UpdateSeen はメッセージのseenフラグを更新する。
	// 対象が存在しないかオーナーが異なる場合はfalseを返す。
	UpdateSeen(ctx context.Context, ownerID, id string, seen bool) (bool, error)

	// Delete はメッセージを削除する。
	// 対象が存在しないかオーナーが異なる場合はfalseを返す。
	Delete(ctx context.Context, ownerID, id string) (bool, error)
}

// SessionCache はセッションのキャッシュ層のインターフェース。
type SessionCache interface {
	// Get はキャッシュからセッションを取得する。キャッシュミスの場合はnilを返す。
	Get(ctx context.Context, id string) (*model.Session, error)
	// Set はセッションをttlの間キャッシュする。
	Set(ctx context.Context, session *model.Session, ttl time.Duration) error
	// Delete は指定IDのキャッシュを削除する。
	Delete(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションのキャッシュを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
