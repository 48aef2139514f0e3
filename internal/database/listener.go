package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// MessageChangesChannel はmessagesテーブルのトリガーが通知するチャネル名。
// ペイロードは変更されたメッセージのowner_id。
const MessageChangesChannel = "message_changes"

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	// listenerPingInterval は通知が途絶えた場合に接続を確認する間隔。
	listenerPingInterval = 90 * time.Second
)

// ChangeListener はPostgreSQLのLISTEN/NOTIFYを購読し、通知をハンドラーに渡す。
// 接続断時はpq.Listenerが自動的に再接続する。
type ChangeListener struct {
	listener *pq.Listener
	channel  string
	logger   *slog.Logger
}

// NewChangeListener は指定チャネルをLISTENするChangeListenerを生成する。
func NewChangeListener(databaseURL, channel string, logger *slog.Logger) (*ChangeListener, error) {
	cl := &ChangeListener{
		channel: channel,
		logger:  logger,
	}
	cl.listener = pq.NewListener(databaseURL, listenerMinReconnect, listenerMaxReconnect, cl.onEvent)

	if err := cl.listener.Listen(channel); err != nil {
		cl.listener.Close()
		return nil, fmt.Errorf("failed to listen on channel %q: %w", channel, err)
	}

	return cl, nil
}

// onEvent は接続状態の変化をログに記録する。
func (cl *ChangeListener) onEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		cl.logger.Info("change listener connected", slog.String("channel", cl.channel))
	case pq.ListenerEventDisconnected:
		cl.logger.Warn("change listener disconnected",
			slog.String("channel", cl.channel),
			slog.Any("error", err),
		)
	case pq.ListenerEventReconnected:
		cl.logger.Info("change listener reconnected", slog.String("channel", cl.channel))
	case pq.ListenerEventConnectionAttemptFailed:
		cl.logger.Warn("change listener reconnect attempt failed",
			slog.String("channel", cl.channel),
			slog.Any("error", err),
		)
	}
}

// Run は通知を受信してhandleに渡す。ctxがキャンセルされるまでブロックし、
// 終了時にLISTEN接続を閉じる。
// 再接続直後は通知が欠落している可能性があるため、空文字列を渡して全体の再同期を要求する。
func (cl *ChangeListener) Run(ctx context.Context, handle func(ownerID string)) error {
	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return cl.listener.Close()
		case n := <-cl.listener.Notify:
			if n == nil {
				handle("")
				continue
			}
			handle(n.Extra)
		case <-ticker.C:
			go func() {
				if err := cl.listener.Ping(); err != nil {
					cl.logger.Warn("change listener ping failed", slog.String("error", err.Error()))
				}
			}()
		}
	}
}
