package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/msgbox/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
// 変更の通知はmessagesテーブルのトリガーがpg_notifyで行う。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// ListByOwner はオーナーの全メッセージを取得する。
// ORDER BYもLIMITも付けない。
func (r *PostgresMessageRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, text, created_at, seen, format FROM messages WHERE owner_id = $1`,
		ownerID,
	)
	if err != nil {
		if isInvalidText(err) {
			return []*model.Message{}, nil
		}
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*model.Message, 0)
	for rows.Next() {
		m := &model.Message{}
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.Text, &m.CreatedAt, &m.Seen, &m.Format); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// UpdateSeen はメッセージのseenフラグを更新する。
func (r *PostgresMessageRepo) UpdateSeen(ctx context.Context, ownerID, id string, seen bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET seen = $3 WHERE id = $1 AND owner_id = $2`,
		id, ownerID, seen,
	)
	return affected(result, err, "update message")
}

// Delete はメッセージを削除する。
func (r *PostgresMessageRepo) Delete(ctx context.Context, ownerID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	return affected(result, err, "delete message")
}

// affected は更新件数が1件以上あったかを返す。
// 不正なUUIDは存在しないメッセージとして扱う。
func affected(result sql.Result, err error, op string) (bool, error) {
	if err != nil {
		if isInvalidText(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
