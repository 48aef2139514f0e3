// Package inbox はサインイン中ユーザーのメッセージ一覧を管理する。
//
// Controllerはオーナー単位のライブクエリを高々1つ保持し、
// 配信されたスナップショットで一覧全体を置き換える。
// 既読化と削除はストアに依頼するだけで、結果はライブクエリ経由でのみ反映される。
package inbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/model"
	"github.com/hitoshi/msgbox/internal/notify"
)

// State はControllerの状態のスナップショット。
type State struct {
	OwnerID  string
	Active   bool
	Loading  bool
	Messages []*model.Message
	// Error は直近の既読化・削除の失敗。DismissErrorで消去する。
	Error error
}

// Controller はメッセージ一覧コントローラー。
type Controller struct {
	store  backend.Store
	logger *slog.Logger

	mu       sync.Mutex
	owner    string
	active   bool
	loading  bool
	messages []*model.Message
	err      error
	// generation は購読を開始・解除するたびに増える。古い購読からの配信を捨てるために使う。
	generation  uint64
	unsubscribe backend.Unsubscribe

	observers notify.Notifier[State]
}

// NewController はControllerを生成する。
func NewController(store backend.Store, logger *slog.Logger) *Controller {
	return &Controller{
		store:   store,
		logger:  logger,
		loading: true,
	}
}

// Start はownerIDのメッセージの購読を開始する。
// 同じオーナーを購読中の場合は何もしない。別のオーナーを購読中の場合は
// 先に購読を解除して一覧を空にする。
func (c *Controller) Start(ownerID string) {
	c.mu.Lock()
	if c.active && c.owner == ownerID {
		c.mu.Unlock()
		return
	}
	prev := c.unsubscribe
	c.generation++
	gen := c.generation
	c.owner = ownerID
	c.active = true
	c.loading = true
	c.messages = nil
	c.err = nil
	c.unsubscribe = nil
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	c.publish()

	c.logger.Debug("starting message subscription", slog.String("owner_id", ownerID))

	unsubscribe := c.store.QueryByOwner(model.MessagesCollection, ownerID).Subscribe(
		func(records []backend.Record) { c.deliver(gen, records) },
		func(err error) { c.fail(gen, err) },
	)

	c.mu.Lock()
	if c.generation != gen {
		// 購読開始中にStopまたは別オーナーのStartが呼ばれた
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

// Stop は購読を解除し、一覧を空にする。
func (c *Controller) Stop() {
	c.mu.Lock()
	prev := c.unsubscribe
	wasActive := c.active
	c.generation++
	c.owner = ""
	c.active = false
	c.loading = true
	c.messages = nil
	c.err = nil
	c.unsubscribe = nil
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	if wasActive {
		c.logger.Debug("stopped message subscription")
	}
	c.publish()
}

// deliver はスナップショットで一覧を置き換える。
func (c *Controller) deliver(gen uint64, records []backend.Record) {
	c.mu.Lock()
	if gen != c.generation || !c.active {
		c.mu.Unlock()
		return
	}
	messages, dropped := decodeRecords(records, c.owner)
	owner := c.owner
	c.messages = messages
	c.loading = false
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("dropped records owned by another user",
			slog.String("owner_id", owner),
			slog.Int("dropped", dropped),
		)
	}
	c.publish()
}

// fail は購読が回復できないエラーで終了したことをストアエラーとして記録する。
// 一覧と読み込み中の状態はそのまま残す。
func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || !c.active {
		c.mu.Unlock()
		return
	}
	owner := c.owner
	c.err = err
	c.mu.Unlock()

	c.logger.Error("message subscription failed",
		slog.String("owner_id", owner),
		slog.String("error", err.Error()),
	)
	c.publish()
}

// MarkSeen はメッセージを既読にするようストアに依頼する。
// 一覧はライブクエリの次のスナップショットで更新される。
func (c *Controller) MarkSeen(ctx context.Context, id string) error {
	err := c.store.UpdateFields(ctx, model.MessagesCollection, id, map[string]any{model.FieldSeen: true})
	if err != nil {
		c.logger.Error("failed to mark message as seen",
			slog.String("message_id", id),
			slog.String("error", err.Error()),
		)
		c.setError(err)
		return err
	}
	return nil
}

// DeleteMessage はメッセージを削除するようストアに依頼する。
func (c *Controller) DeleteMessage(ctx context.Context, id string) error {
	err := c.store.DeleteRecord(ctx, model.MessagesCollection, id)
	if err != nil {
		c.logger.Error("failed to delete message",
			slog.String("message_id", id),
			slog.String("error", err.Error()),
		)
		c.setError(err)
		return err
	}
	return nil
}

// DismissError は直近のエラーを消去する。
func (c *Controller) DismissError() {
	c.mu.Lock()
	had := c.err != nil
	c.err = nil
	c.mu.Unlock()

	if had {
		c.publish()
	}
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.publish()
}

// State は現在の状態を返す。Messagesは呼び出し元が変更してよいコピー。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	var messages []*model.Message
	if c.messages != nil {
		messages = make([]*model.Message, len(c.messages))
		for i, m := range c.messages {
			cp := *m
			messages[i] = &cp
		}
	}
	return State{
		OwnerID:  c.owner,
		Active:   c.active,
		Loading:  c.loading,
		Messages: messages,
		Error:    c.err,
	}
}

// Subscribe は状態変化の購読者を登録する。
func (c *Controller) Subscribe(fn func(State)) (cancel func()) {
	return c.observers.Subscribe(fn)
}

func (c *Controller) publish() {
	c.observers.Publish(c.State())
}
