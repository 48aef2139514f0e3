package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/livequery"
)

const (
	// FrameTypeSnapshot はスナップショットフレームの種別。
	FrameTypeSnapshot = "snapshot"

	// liveReadTimeout はクライアントからのpongが途絶えたと判断するまでの時間。
	liveReadTimeout = 90 * time.Second
	liveWriteWait   = 10 * time.Second
	liveReadLimit   = 1024

	// DefaultLivePingInterval はpingの送信間隔のデフォルト値。
	DefaultLivePingInterval = 30 * time.Second
)

// LiveFrame はライブクエリのWebSocketで送信するフレーム。
// Recordsは毎回結果集合全体を含む。
type LiveFrame struct {
	Type    string           `json:"type"`
	Records []backend.Record `json:"records"`
}

// LiveSubscriber はライブクエリ購読の開始に必要なインターフェース。
type LiveSubscriber interface {
	Subscribe(ownerID string) *livequery.Subscription
}

// LiveHandler はオーナー単位のライブクエリをWebSocketで配信する。
type LiveHandler struct {
	hub          LiveSubscriber
	pingInterval time.Duration
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// NewLiveHandler はLiveHandlerを生成する。
// 購読数のメトリクスはhub側で記録する。
func NewLiveHandler(hub LiveSubscriber, pingInterval time.Duration, logger *slog.Logger) *LiveHandler {
	if pingInterval <= 0 {
		pingInterval = DefaultLivePingInterval
	}
	return &LiveHandler{
		hub:          hub,
		pingInterval: pingInterval,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 認証はBearerトークンで行い、ブラウザのCookieは使わない
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		shutdown: make(chan struct{}),
	}
}

// Shutdown は全てのライブ接続を終了させる。http.Server.RegisterOnShutdownに登録する。
func (h *LiveHandler) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

// Live はWebSocketにアップグレードし、スナップショットを配信する。
// GET /api/messages/live?owner=xxx
func (h *LiveHandler) Live(w http.ResponseWriter, r *http.Request) {
	owner := requireOwner(w, r)
	if owner == "" {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(owner)
	defer sub.Close()

	h.logger.Info("live subscription opened", slog.String("user_id", owner))

	readDone := make(chan struct{})
	go h.readLoop(conn, readDone)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case snapshot := <-sub.Snapshots():
			frame := LiveFrame{Type: FrameTypeSnapshot, Records: backend.RecordsFromMessages(snapshot)}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				h.logger.Info("live subscription closed", slog.String("user_id", owner), slog.String("reason", err.Error()))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				h.logger.Info("live subscription closed", slog.String("user_id", owner), slog.String("reason", err.Error()))
				return
			}
		case <-readDone:
			h.logger.Info("live subscription closed", slog.String("user_id", owner))
			return
		case <-h.shutdown:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(liveWriteWait))
			return
		}
	}
}

// readLoop はクライアントからのフレームを読み捨て、切断を検知する。
// pongを受け取るたびに読み込み期限を延長する。
func (h *LiveHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(liveReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
