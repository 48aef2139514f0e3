package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/msgbox/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// sessions.idにはトークンそのものではなくsessionKeyで導出したダイジェストを保存する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。session.IDはクライアントに渡すトークン。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4)`,
		sessionKey(session.ID), session.UserID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		if isInvalidText(err) {
			return fmt.Errorf("failed to create session: invalid user id %q: %w", session.UserID, err)
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID はトークンに対応する有効なセッションを取得する。
// 存在しないか期限切れの場合はnil, nilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}

	session := &model.Session{ID: token}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		sessionKey(token),
	).Scan(&session.UserID, &session.ExpiresAt, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// DeleteByID はトークンに対応するセッションを削除する。存在しない場合も成功とする。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sessionKey(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。退会時やパスワード変更時に使う。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		if isInvalidText(err) {
			return nil
		}
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
