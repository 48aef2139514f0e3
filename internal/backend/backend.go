// Package backend はクライアントが利用する認証サービスとドキュメントストアの境界を定義する。
// コントローラーはこのパッケージのインターフェースにのみ依存し、具体的な実装は注入される。
package backend

import (
	"context"

	"github.com/hitoshi/msgbox/internal/model"
)

// Record はドキュメントストアの1件のドキュメントを表す。
// フィールドはコレクションごとに異なるため、map[string]anyで保持する。
type Record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// RecordFromMessage はメッセージをドキュメント表現に変換する。
func RecordFromMessage(m *model.Message) Record {
	return Record{ID: m.ID, Fields: m.Fields()}
}

// RecordsFromMessages はメッセージ一覧をドキュメント一覧に変換する。並び順は保持する。
func RecordsFromMessages(messages []*model.Message) []Record {
	records := make([]Record, 0, len(messages))
	for _, m := range messages {
		records = append(records, RecordFromMessage(m))
	}
	return records
}

// Unsubscribe は購読を解除する。複数回呼び出しても安全でなければならない。
type Unsubscribe func()

// AuthClient は認証サービスへの境界。
type AuthClient interface {
	// SignIn はメールアドレスとパスワードで認証する。
	// 失敗時のエラーはユーザーに表示できるメッセージを持つ（*model.APIError）。
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)

	// SignOut は現在のセッションを終了する。
	SignOut(ctx context.Context) error

	// SubscribeAuthState は認証状態の変化を購読する。
	// 購読直後に現在の状態を1回通知し、その後は変化のたびに通知する。
	// 未認証状態はnilで通知される。
	SubscribeAuthState(fn func(*model.Identity)) Unsubscribe
}

// LiveQuery はフィルタ済みコレクションのライブクエリ。
type LiveQuery interface {
	// Subscribe はスナップショットの配信を開始する。
	// fnは変更のたびに結果集合全体を受け取る。差分ではない。
	// onErrorは購読が回復できないエラーで終了したときに1回だけ呼ばれる。nilでもよい。
	Subscribe(fn func([]Record), onError func(error)) Unsubscribe
}

// Store はドキュメントストアへの境界。
type Store interface {
	// QueryByOwner はowner_idが一致するドキュメントのライブクエリを返す。
	QueryByOwner(collection, ownerID string) LiveQuery

	// UpdateFields はドキュメントのフィールドを部分更新する。
	UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error

	// DeleteRecord はドキュメントを削除する。
	DeleteRecord(ctx context.Context, collection, id string) error
}
