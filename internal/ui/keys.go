package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap はTUIのキー割り当て。
type KeyMap struct {
	// ログインフォーム
	NextField key.Binding
	PrevField key.Binding
	Submit    key.Binding

	// メッセージ一覧
	Up       key.Binding
	Down     key.Binding
	MarkSeen key.Binding
	Delete   key.Binding
	SignOut  key.Binding
	Dismiss  key.Binding

	Quit      key.Binding
	ForceQuit key.Binding
}

// DefaultKeyMap は標準のキー割り当て。
var DefaultKeyMap = KeyMap{
	NextField: key.NewBinding(
		key.WithKeys("tab", "down"),
		key.WithHelp("tab", "次の項目"),
	),
	PrevField: key.NewBinding(
		key.WithKeys("shift+tab", "up"),
		key.WithHelp("S-tab", "前の項目"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "ログイン"),
	),
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "上へ"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "下へ"),
	),
	MarkSeen: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "既読にする"),
	),
	Delete: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "削除"),
	),
	SignOut: key.NewBinding(
		key.WithKeys("o"),
		key.WithHelp("o", "ログアウト"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "エラーを閉じる"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "終了"),
	),
	ForceQuit: key.NewBinding(
		key.WithKeys("ctrl+c"),
	),
}
