package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/msgbox/internal/inbox"
	"github.com/hitoshi/msgbox/internal/session"
)

const (
	// requestTimeout はサインイン・サインアウト・既読化・削除の1回あたりの上限。
	requestTimeout = 15 * time.Second
	// statusFadeDelay はステータス行のエラーを自動で消すまでの時間。
	statusFadeDelay = 5 * time.Second
)

// SessionController はModelが利用するセッションコントローラーの操作。
type SessionController interface {
	State() session.State
	Subscribe(fn func(session.State)) (cancel func())
	Submit(ctx context.Context) error
	SignOut(ctx context.Context) error
	UpdateForm(email, password string)
	DismissAlert()
}

// InboxController はModelが利用するメッセージ一覧コントローラーの操作。
type InboxController interface {
	State() inbox.State
	Subscribe(fn func(inbox.State)) (cancel func())
	MarkSeen(ctx context.Context, id string) error
	DeleteMessage(ctx context.Context, id string) error
	DismissError()
}

// stateChangedMsg はいずれかのコントローラーの状態が変化したことを表す。
// 状態そのものは受信時にコントローラーから読み直す。
type stateChangedMsg struct{}

// mutationResultMsg は非同期の操作が完了したときに送られる。
// 失敗内容はコントローラーの状態に反映済みのため、ここではエラーの有無だけを扱う。
type mutationResultMsg struct {
	err error
}

// statusFadeMsg はステータス行のエラーを消去する。
// seqが最新の失敗と一致しない場合は、後から表示されたエラーを残すため無視する。
type statusFadeMsg struct {
	seq int
}

// subscriptions はコントローラーの購読解除関数を保持する。
// Modelは値としてコピーされるため、ポインタで共有する。
type subscriptions struct {
	cancels []func()
}

// Model はbubbleteaのモデル。
type Model struct {
	session SessionController
	inbox   InboxController
	keys    KeyMap

	events chan struct{}
	subs   *subscriptions

	email    textinput.Model
	password textinput.Model
	focus    Field
	spinner  spinner.Model

	sessionState session.State
	inboxState   inbox.State
	cursor       int
	fadeSeq      int
}

// NewModel はModelを生成し、両コントローラーの状態変化の購読を開始する。
// 終了時にはCloseを呼び出すこと。
func NewModel(sess SessionController, list InboxController) Model {
	email := textinput.New()
	email.Placeholder = "user@example.com"
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'
	password.CharLimit = 128

	model := Model{
		session:  sess,
		inbox:    list,
		keys:     DefaultKeyMap,
		events:   make(chan struct{}, 1),
		subs:     &subscriptions{},
		email:    email,
		password: password,
		focus:    FieldEmail,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}

	notify := func() {
		select {
		case model.events <- struct{}{}:
		default:
			// 未処理の通知があれば受信時にまとめて読み直す
		}
	}
	model.subs.cancels = append(model.subs.cancels,
		sess.Subscribe(func(session.State) { notify() }),
		list.Subscribe(func(inbox.State) { notify() }),
	)
	model.refresh()
	return model
}

// Close は状態変化の購読を解除する。
func (model Model) Close() {
	for _, cancel := range model.subs.cancels {
		cancel()
	}
	model.subs.cancels = nil
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(
		listenForStateChange(model.events),
		model.spinner.Tick,
		textinput.Blink,
	)
}

// listenForStateChange は状態変化の通知を待ち、stateChangedMsgとして返す。
func listenForStateChange(channel <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-channel; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case stateChangedMsg:
		model.refresh()
		return model, listenForStateChange(model.events)

	case mutationResultMsg:
		if message.err != nil {
			model.fadeSeq++
			seq := model.fadeSeq
			return model, tea.Tick(statusFadeDelay, func(time.Time) tea.Msg {
				return statusFadeMsg{seq: seq}
			})
		}
		return model, nil

	case statusFadeMsg:
		if message.seq == model.fadeSeq {
			model.inbox.DismissError()
		}
		return model, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		model.spinner, cmd = model.spinner.Update(message)
		return model, cmd

	case tea.KeyMsg:
		return model.handleKey(message)
	}

	return model.updateInputs(message)
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(message, model.keys.ForceQuit) {
		return model, tea.Quit
	}

	// アラート表示中は任意のキーで閉じる
	if model.sessionState.Alert != "" {
		model.session.DismissAlert()
		model.sessionState.Alert = ""
		return model, nil
	}

	if !model.sessionState.SignedIn() {
		return model.handleLoginKeys(message)
	}
	return model.handleListKeys(message)
}

func (model Model) handleLoginKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Submit):
		if model.sessionState.Pending {
			return model, nil
		}
		if model.focus == FieldEmail {
			model.setFocus(FieldPassword)
			return model, nil
		}
		model.sessionState.Pending = true
		return model, model.submit()

	case key.Matches(message, model.keys.NextField), key.Matches(message, model.keys.PrevField):
		if model.focus == FieldEmail {
			model.setFocus(FieldPassword)
		} else {
			model.setFocus(FieldEmail)
		}
		return model, nil
	}

	return model.updateInputs(message)
}

func (model Model) handleListKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	messages := model.inboxState.Messages

	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Up):
		if model.cursor > 0 {
			model.cursor--
		}

	case key.Matches(message, model.keys.Down):
		if model.cursor < len(messages)-1 {
			model.cursor++
		}

	case key.Matches(message, model.keys.MarkSeen):
		if model.cursor < len(messages) && !messages[model.cursor].Seen {
			return model, model.markSeen(messages[model.cursor].ID)
		}

	case key.Matches(message, model.keys.Delete):
		if model.cursor < len(messages) {
			return model, model.deleteMessage(messages[model.cursor].ID)
		}

	case key.Matches(message, model.keys.SignOut):
		if !model.sessionState.Pending {
			model.sessionState.Pending = true
			return model, model.signOut()
		}

	case key.Matches(message, model.keys.Dismiss):
		model.inbox.DismissError()
	}

	return model, nil
}

// updateInputs はフォーカス中の入力欄にメッセージを渡し、入力値をコントローラーに反映する。
func (model Model) updateInputs(message tea.Msg) (tea.Model, tea.Cmd) {
	if model.sessionState.SignedIn() {
		return model, nil
	}

	var cmd tea.Cmd
	if model.focus == FieldEmail {
		model.email, cmd = model.email.Update(message)
	} else {
		model.password, cmd = model.password.Update(message)
	}

	email, password := model.email.Value(), model.password.Value()
	if email != model.sessionState.Email || password != model.sessionState.Password {
		model.session.UpdateForm(email, password)
		model.sessionState.Email = email
		model.sessionState.Password = password
	}
	return model, cmd
}

func (model *Model) setFocus(field Field) {
	model.focus = field
	if field == FieldEmail {
		model.email.Focus()
		model.password.Blur()
	} else {
		model.password.Focus()
		model.email.Blur()
	}
}

// refresh はコントローラーから状態を読み直す。
func (model *Model) refresh() {
	model.sessionState = model.session.State()
	model.inboxState = model.inbox.State()

	// サインイン成功時などコントローラー側でフォームが消去された場合に追従する
	if model.email.Value() != model.sessionState.Email {
		model.email.SetValue(model.sessionState.Email)
	}
	if model.password.Value() != model.sessionState.Password {
		model.password.SetValue(model.sessionState.Password)
	}

	if count := len(model.inboxState.Messages); model.cursor >= count {
		model.cursor = max(count-1, 0)
	}
}

func (model Model) submit() tea.Cmd {
	sess := model.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return mutationResultMsg{err: sess.Submit(ctx)}
	}
}

func (model Model) signOut() tea.Cmd {
	sess := model.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return mutationResultMsg{err: sess.SignOut(ctx)}
	}
}

func (model Model) markSeen(id string) tea.Cmd {
	list := model.inbox
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return mutationResultMsg{err: list.MarkSeen(ctx, id)}
	}
}

func (model Model) deleteMessage(id string) tea.Cmd {
	list := model.inbox
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return mutationResultMsg{err: list.DeleteMessage(ctx, id)}
	}
}

// View implements tea.Model.
func (model Model) View() string {
	return Render(model.viewState())
}

func (model Model) viewState() ViewState {
	return ViewState{
		Session: model.sessionState,
		Inbox:   model.inboxState,
		Cursor:  model.cursor,
		Focus:   model.focus,
		Spinner: model.spinner.View(),
	}
}
