package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/model"
)

const (
	frameTypeSnapshot = "snapshot"

	// liveReadTimeout はサーバーからのpingが途絶えたと判断するまでの時間。
	liveReadTimeout = 90 * time.Second
	liveWriteWait   = 5 * time.Second
)

var (
	// errLiveRejected は再接続しても回復しない拒否を表す。
	errLiveRejected = errors.New("live query rejected by server")
	// errSessionExpired はライブ接続が401で拒否されたことを表す。
	errSessionExpired = errors.New("session expired")
)

type liveFrame struct {
	Type    string           `json:"type"`
	Records []backend.Record `json:"records"`
}

type liveQuery struct {
	client     *Client
	collection string
	owner      string
}

// Subscribe はWebSocketでスナップショットの受信を開始する。
// 切断時は指数バックオフで再接続する。サーバーが401を返した場合は
// セッションを失効させて購読を終了する。それ以外の拒否はonErrorに渡して終了する。
// 返す解除関数は受信ゴルーチンの終了を待つ。
func (q *liveQuery) Subscribe(fn func([]backend.Record), onError func(error)) backend.Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	if onError == nil {
		onError = func(error) {}
	}
	go q.run(ctx, fn, onError, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (q *liveQuery) run(ctx context.Context, fn func([]backend.Record), onError func(error), done chan<- struct{}) {
	defer close(done)

	c := q.client
	logger := c.logger.With(slog.String("owner_id", q.owner))

	if _, err := documentPath(q.collection, ""); err != nil {
		logger.Error("live query not started", slog.String("error", err.Error()))
		onError(err)
		return
	}

	failures := 0
	for {
		token := c.currentToken()
		if token == "" {
			logger.Warn("live query stopped: not signed in")
			return
		}

		received, err := q.connect(ctx, token, fn)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errLiveRejected) {
			logger.Error("live query stopped", slog.String("error", err.Error()))
			// 401はセッション失効として認証側で扱う
			if !errors.Is(err, errSessionExpired) {
				onError(err)
			}
			return
		}

		if received {
			failures = 0
		}
		wait := c.backoff(failures)
		failures++
		logger.Warn("live query disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("retry_in", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// connect は1回の接続でフレームを受信し続ける。接続が切れるとエラーを返す。
// receivedはスナップショットを1件以上受信したかを表す。
func (q *liveQuery) connect(ctx context.Context, token string, fn func([]backend.Record)) (received bool, err error) {
	c := q.client

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.dialer.DialContext(ctx, c.liveURL(q.collection, q.owner), header)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				// 購読解除がこのゴルーチンの終了を待つため、失効通知は別ゴルーチンで行う
				go c.expire(token)
				return false, fmt.Errorf("%w: %w", errLiveRejected, errSessionExpired)
			case http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
				return false, fmt.Errorf("%w: %w", errLiveRejected, decodeError(resp, model.CategoryStore))
			}
		}
		return false, err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(liveWriteWait))
			conn.Close()
		case <-stop:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(liveReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(liveWriteWait))
	})

	for {
		var frame liveFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return received, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(liveReadTimeout))

		if frame.Type != frameTypeSnapshot {
			continue
		}
		records := frame.Records
		if records == nil {
			records = []backend.Record{}
		}
		if ctx.Err() != nil {
			return received, ctx.Err()
		}
		fn(records)
		received = true
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
