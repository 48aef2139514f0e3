package model

import "time"

// MessagesCollection はメッセージを格納するコレクション名。
const MessagesCollection = "messages"

// メッセージドキュメントのフィールド名。
const (
	FieldOwnerID   = "owner_id"
	FieldText      = "text"
	FieldCreatedAt = "created_at"
	FieldSeen      = "seen"
	FieldFormat    = "format"
)

// 本文の形式。プロデューサーが指定し、省略時はFormatText。
const (
	FormatText = "text"
	FormatHTML = "html"
)

// Message はユーザー宛てのメッセージを表す。
// 作成は外部のプロデューサーが行い、クライアントは既読化と削除のみを行う。
type Message struct {
	ID        string
	OwnerID   string
	Text      string
	CreatedAt time.Time
	Seen      bool
	Format    string
}

// IsHTML は本文がHTML形式で書かれているかを返す。
func (m *Message) IsHTML() bool {
	return m.Format == FormatHTML
}

// Fields はメッセージをドキュメントのフィールドマップに変換する。
// created_atはRFC3339Nano形式の文字列として表現する。
func (m *Message) Fields() map[string]any {
	fields := map[string]any{
		FieldOwnerID: m.OwnerID,
		FieldText:    m.Text,
		FieldSeen:    m.Seen,
	}
	if m.Format != "" {
		fields[FieldFormat] = m.Format
	}
	if !m.CreatedAt.IsZero() {
		fields[FieldCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return fields
}
