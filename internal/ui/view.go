// Package ui はメッセージボックスのターミナルUIを提供する。
//
// Renderは状態だけから画面を組み立てる純粋関数で、Modelはbubbleteaの
// イベントをセッション・メッセージ一覧コントローラーの操作に変換する。
package ui

import (
	"strings"
	"time"

	"github.com/hitoshi/msgbox/internal/inbox"
	"github.com/hitoshi/msgbox/internal/model"
	"github.com/hitoshi/msgbox/internal/security"
	"github.com/hitoshi/msgbox/internal/session"
)

// timeLayout は作成日時の表示形式。
const timeLayout = "2006/01/02 15:04:05"

// 画面上の操作ラベル。
const (
	markSeenLabel = "[s] 既読にする"
	deleteLabel   = "[d] 削除"
)

// Field はログインフォームの入力項目。
type Field int

const (
	FieldEmail Field = iota
	FieldPassword
)

// ViewState は1フレームの描画に必要な全ての状態。
type ViewState struct {
	Session session.State
	Inbox   inbox.State
	// Cursor は選択中のメッセージの位置。
	Cursor int
	// Focus はログインフォームで入力中の項目。
	Focus Field
	// Spinner は読み込み中に表示するスピナーのフレーム。
	Spinner string
}

var textSanitizer = security.NewTextSanitizer()

// Render は状態から画面を組み立てる。
// アラートがある場合は他の表示より優先してアラートのみを表示する。
func Render(state ViewState) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("msgbox"))
	b.WriteString("\n\n")

	if state.Session.Alert != "" {
		b.WriteString(renderAlert(state.Session.Alert))
		return b.String()
	}

	if !state.Session.SignedIn() {
		b.WriteString(renderLoginForm(state))
		return b.String()
	}

	b.WriteString(renderInbox(state))
	return b.String()
}

// messageText は一覧に表示する本文を返す。HTML形式の本文のみタグを除去する。
func messageText(m *model.Message) string {
	if m.IsHTML() {
		return textSanitizer.SanitizeHTML(m.Text)
	}
	return textSanitizer.Sanitize(m.Text)
}

func renderAlert(alert string) string {
	body := "エラー\n\n" + textSanitizer.Sanitize(alert) + "\n\n" + helpStyle.Render("任意のキーで閉じる")
	return alertStyle.Render(body) + "\n"
}

func renderLoginForm(state ViewState) string {
	var b strings.Builder

	b.WriteString("ログインしてください\n\n")
	b.WriteString(renderField("メールアドレス", state.Session.Email, state.Focus == FieldEmail))
	b.WriteString(renderField("パスワード    ", maskPassword(state.Session.Password), state.Focus == FieldPassword))
	b.WriteString("\n")

	if state.Session.Pending {
		b.WriteString(state.Spinner + " ログイン中...\n")
	} else {
		b.WriteString(helpStyle.Render("enter: ログイン  tab: 項目移動  ctrl+c: 終了") + "\n")
	}
	return b.String()
}

func renderField(label, value string, focused bool) string {
	if focused {
		return focusedStyle.Render("> "+label+": ") + value + "\n"
	}
	return blurredStyle.Render("  "+label+": ") + value + "\n"
}

func maskPassword(password string) string {
	return strings.Repeat("*", len([]rune(password)))
}

func renderInbox(state ViewState) string {
	var b strings.Builder

	email := ""
	if state.Session.Identity != nil {
		email = textSanitizer.Sanitize(state.Session.Identity.Email)
	}
	b.WriteString("ようこそ " + email + " さん\n")
	b.WriteString(helpStyle.Render("[o] ログアウト  [q] 終了") + "\n\n")

	switch {
	case state.Session.Pending:
		b.WriteString(state.Spinner + " 処理中...\n")
	case state.Inbox.Loading:
		b.WriteString(state.Spinner + " 読み込み中...\n")
	case len(state.Inbox.Messages) == 0:
		b.WriteString("メッセージはありません\n")
	default:
		for i, m := range state.Inbox.Messages {
			b.WriteString(renderMessage(m, i == state.Cursor))
		}
	}

	if state.Inbox.Error != nil {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("エラー: "+textSanitizer.Sanitize(model.UserMessage(state.Inbox.Error))) + "\n")
	}
	return b.String()
}

func renderMessage(m *model.Message, selected bool) string {
	var b strings.Builder

	marker := "  "
	if selected {
		marker = "> "
	}

	badge := seenStyle.Render("既読")
	if !m.Seen {
		badge = unseenStyle.Render("未読")
	}

	line := marker + badge + " " + timeStyle.Render(formatCreatedAt(m.CreatedAt)) + " " + messageText(m)
	if selected {
		line = selectedStyle.Render(line)
	}
	b.WriteString(line + "\n")

	actions := deleteLabel
	if !m.Seen {
		actions = markSeenLabel + "  " + deleteLabel
	}
	b.WriteString("    " + actionStyle.Render(actions) + "\n")
	return b.String()
}

// formatCreatedAt は作成日時をローカル時刻で表示する。未設定の場合は"-"を返す。
func formatCreatedAt(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
