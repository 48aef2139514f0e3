// Package session はクライアントの認証状態とログインフォームを管理する。
//
// Controllerは認証サービスの状態通知を受けてIdentityを保持し、
// Identityの有無に応じてメッセージ一覧の購読を開始・解除する。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/model"
	"github.com/hitoshi/msgbox/internal/notify"
)

// MessageList はSession Controllerが操作するメッセージ一覧のインターフェース。
// inbox.Controllerが実装する。
type MessageList interface {
	Start(ownerID string)
	Stop()
}

// State はControllerの状態のスナップショット。
type State struct {
	Identity *model.Identity
	Email    string
	Password string
	// Alert は認証操作の失敗時にユーザーへ表示するメッセージ。
	Alert string
	// Pending はサインイン・サインアウトの処理中であることを表す。
	Pending bool
}

// SignedIn はIdentityを保持しているかを返す。
func (s State) SignedIn() bool {
	return s.Identity != nil
}

// Controller はセッションコントローラー。
type Controller struct {
	auth   backend.AuthClient
	list   MessageList
	logger *slog.Logger

	// authMu はIdentityの置き換えと一覧の開始・解除を直列化する。
	authMu sync.Mutex

	mu          sync.Mutex
	identity    *model.Identity
	email       string
	password    string
	alert       string
	pending     bool
	unsubscribe backend.Unsubscribe

	observers notify.Notifier[State]
}

// NewController はControllerを生成する。
func NewController(auth backend.AuthClient, list MessageList, logger *slog.Logger) *Controller {
	return &Controller{
		auth:   auth,
		list:   list,
		logger: logger,
	}
}

// Start は認証状態の購読を開始する。購読直後に現在の状態が通知される。
func (c *Controller) Start() {
	unsubscribe := c.auth.SubscribeAuthState(c.OnAuthChanged)

	c.mu.Lock()
	prev := c.unsubscribe
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Close は認証状態の購読とメッセージ一覧の購読を解除する。
func (c *Controller) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.list.Stop()
}

// OnAuthChanged はIdentityを置き換える。
// Identityがあれば一覧の購読を開始し、なければ解除して一覧を空にする。
func (c *Controller) OnAuthChanged(identity *model.Identity) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	var held *model.Identity
	if identity != nil {
		cp := *identity
		held = &cp
	}

	c.mu.Lock()
	c.identity = held
	c.mu.Unlock()

	if held != nil {
		c.list.Start(held.ID)
	} else {
		c.list.Stop()
	}
	c.publish()
}

// SignIn はメールアドレスとパスワードでサインインする。
// 成功時はフォームとアラートを消去する。失敗時はプロバイダーのメッセージをアラートに設定し、
// セッションは変更しない。
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	c.setPending(true)

	identity, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		c.logger.Warn("sign in failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.pending = false
		c.alert = model.UserMessage(err)
		c.mu.Unlock()
		c.publish()
		return err
	}

	c.mu.Lock()
	c.pending = false
	c.email = ""
	c.password = ""
	c.alert = ""
	c.mu.Unlock()

	c.logger.Info("signed in", slog.String("user_id", identity.ID))
	c.OnAuthChanged(identity)
	return nil
}

// Submit はフォームの内容でサインインする。
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	email, password := c.email, c.password
	c.mu.Unlock()

	return c.SignIn(ctx, email, password)
}

// SignOut はサインアウトする。失敗時は状態を変更せずアラートを設定する。
func (c *Controller) SignOut(ctx context.Context) error {
	c.setPending(true)

	if err := c.auth.SignOut(ctx); err != nil {
		c.logger.Warn("sign out failed", slog.String("error", err.Error()))
		c.mu.Lock()
		c.pending = false
		c.alert = model.UserMessage(err)
		c.mu.Unlock()
		c.publish()
		return err
	}

	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()

	c.logger.Info("signed out")
	c.OnAuthChanged(nil)
	return nil
}

// UpdateForm はログインフォームの入力値を更新する。
func (c *Controller) UpdateForm(email, password string) {
	c.mu.Lock()
	changed := c.email != email || c.password != password
	c.email = email
	c.password = password
	c.mu.Unlock()

	if changed {
		c.publish()
	}
}

// DismissAlert はアラートを消去する。
func (c *Controller) DismissAlert() {
	c.mu.Lock()
	had := c.alert != ""
	c.alert = ""
	c.mu.Unlock()

	if had {
		c.publish()
	}
}

// State は現在の状態を返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	var identity *model.Identity
	if c.identity != nil {
		cp := *c.identity
		identity = &cp
	}
	return State{
		Identity: identity,
		Email:    c.email,
		Password: c.password,
		Alert:    c.alert,
		Pending:  c.pending,
	}
}

// Subscribe は状態変化の購読者を登録する。
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	return c.observers.Subscribe(fn)
}

func (c *Controller) setPending(pending bool) {
	c.mu.Lock()
	c.pending = pending
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	c.observers.Publish(c.State())
}
