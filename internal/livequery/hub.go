// Package livequery はオーナー単位のライブクエリ配信を提供する。
//
// Hubは変更通知を受けるとオーナーのメッセージ一覧を読み直し、
// そのオーナーの全購読者に結果集合全体を配信する。
// 読み直しは1本のゴルーチンで直列に行うため、古いスナップショットが新しいものを追い越すことはない。
package livequery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/msgbox/internal/metrics"
	"github.com/hitoshi/msgbox/internal/model"
)

// DefaultRetryDelay は読み込み失敗時に再試行するまでの待ち時間。
const DefaultRetryDelay = time.Second

// Loader はオーナーのメッセージ一覧を読み込むインターフェース。
type Loader interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Message, error)
}

// Hub はライブクエリの購読者を管理し、スナップショットを配信する。
type Hub struct {
	loader     Loader
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	retryDelay time.Duration

	mu        sync.Mutex
	subs      map[string]map[*Subscription]struct{}
	pending   map[string]struct{}
	resyncAll bool
	wake      chan struct{}
}

// NewHub はHubを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewHub(loader Loader, collector metrics.MetricsCollector, logger *slog.Logger) *Hub {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Hub{
		loader:     loader,
		logger:     logger,
		metrics:    collector,
		retryDelay: DefaultRetryDelay,
		subs:       make(map[string]map[*Subscription]struct{}),
		pending:    make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
	}
}

// Subscription は1つのライブクエリ購読を表す。
type Subscription struct {
	hub       *Hub
	owner     string
	snapshots chan []*model.Message
	done      chan struct{}
	closeOnce sync.Once
}

// Snapshots はスナップショットを受け取るチャネルを返す。
// 受信側が遅れた場合、未受信のスナップショットは最新のもので置き換えられる。
func (s *Subscription) Snapshots() <-chan []*model.Message {
	return s.snapshots
}

// Done は購読が解除されたときにcloseされるチャネルを返す。
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close は購読を解除する。複数回呼び出しても安全。
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
}

// push はスナップショットを最新優先で配信する。Runゴルーチンからのみ呼ばれる。
func (s *Subscription) push(snapshot []*model.Message) {
	select {
	case <-s.snapshots:
	default:
	}
	select {
	case s.snapshots <- snapshot:
	default:
	}
}

// Subscribe はオーナーのライブクエリ購読を開始する。
// 最初のスナップショットはRunゴルーチンが読み込んで配信する。
func (h *Hub) Subscribe(ownerID string) *Subscription {
	sub := &Subscription{
		hub:       h,
		owner:     ownerID,
		snapshots: make(chan []*model.Message, 1),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.subs[ownerID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[ownerID] = set
	}
	set[sub] = struct{}{}
	h.pending[ownerID] = struct{}{}
	h.mu.Unlock()

	h.metrics.LiveSubscriptionOpened()
	h.signal()
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.subs[sub.owner]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.owner)
		}
	}
	h.mu.Unlock()

	h.metrics.LiveSubscriptionClosed()
}

// Notify はオーナーのメッセージが変更されたことを通知する。
// 空文字列を渡すと購読中の全オーナーを読み直す。
// 連続した通知は1回の読み直しにまとめられる。
func (h *Hub) Notify(ownerID string) {
	h.mu.Lock()
	if ownerID == "" {
		h.resyncAll = true
	} else {
		h.pending[ownerID] = struct{}{}
	}
	h.mu.Unlock()

	h.signal()
}

func (h *Hub) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// SubscriberCount は指定オーナーの購読者数を返す。
func (h *Hub) SubscriberCount(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}

// Run は変更通知を処理してスナップショットを配信する。ctxがキャンセルされるまでブロックする。
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.wake:
			for _, owner := range h.takePending() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				h.refresh(ctx, owner)
			}
		}
	}
}

// takePending は読み直しが必要なオーナーを取り出す。購読者のいないオーナーは除く。
func (h *Hub) takePending() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var owners []string
	if h.resyncAll {
		for owner := range h.subs {
			owners = append(owners, owner)
		}
	} else {
		for owner := range h.pending {
			if _, ok := h.subs[owner]; ok {
				owners = append(owners, owner)
			}
		}
	}

	h.pending = make(map[string]struct{})
	h.resyncAll = false
	return owners
}

func (h *Hub) refresh(ctx context.Context, owner string) {
	start := time.Now()
	messages, err := h.loader.ListByOwner(ctx, owner)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn("live query reload failed",
			slog.String("user_id", owner),
			slog.String("error", err.Error()),
		)
		time.AfterFunc(h.retryDelay, func() { h.Notify(owner) })
		return
	}
	h.metrics.RecordSnapshot(len(messages), time.Since(start))

	h.mu.Lock()
	targets := make([]*Subscription, 0, len(h.subs[owner]))
	for sub := range h.subs[owner] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		sub.push(messages)
	}
}
