package inbox

import (
	"time"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/model"
)

// decodeRecords はスナップショットをメッセージ一覧に変換する。
// owner_idがownerと一致しないドキュメントは除外する。並び順は保持する。
func decodeRecords(records []backend.Record, owner string) (messages []*model.Message, dropped int) {
	messages = make([]*model.Message, 0, len(records))
	for _, r := range records {
		m := decodeRecord(r)
		if m.OwnerID != owner {
			dropped++
			continue
		}
		messages = append(messages, m)
	}
	return messages, dropped
}

// decodeRecord は1件のドキュメントをメッセージに変換する。
// 型が合わないフィールドはゼロ値として扱う。
func decodeRecord(r backend.Record) *model.Message {
	m := &model.Message{ID: r.ID}
	m.OwnerID, _ = r.Fields[model.FieldOwnerID].(string)
	m.Text, _ = r.Fields[model.FieldText].(string)
	m.Seen, _ = r.Fields[model.FieldSeen].(bool)
	m.Format, _ = r.Fields[model.FieldFormat].(string)

	switch v := r.Fields[model.FieldCreatedAt].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.CreatedAt = t
		}
	case time.Time:
		m.CreatedAt = v
	}
	return m
}
