// Package remote はバックエンドのHTTP APIを使ってbackend.AuthClientとbackend.Storeを実装する。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/middleware"
	"github.com/hitoshi/msgbox/internal/model"
	"github.com/hitoshi/msgbox/internal/notify"
)

// DefaultTimeout はHTTPリクエストのデフォルトタイムアウト。
const DefaultTimeout = 10 * time.Second

// Client はバックエンドAPIのクライアント。
// サインインで得たトークンをメモリ上にのみ保持する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
	backoff    func(int) time.Duration

	mu       sync.Mutex
	token    string
	identity *model.Identity

	// authMu は認証状態の通知順序を保証する。
	authMu    sync.Mutex
	authState notify.Notifier[*model.Identity]
}

var (
	_ backend.AuthClient = (*Client)(nil)
	_ backend.Store      = (*Client)(nil)
)

// New はClientを生成する。baseURLはhttp://またはhttps://で始まる必要がある。
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		},
		logger:  logger,
		backoff: Backoff,
	}
}

// --- AuthClient ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *model.Identity `json:"user"`
}

// SignIn はメールアドレスとパスワードでサインインする。
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	var resp loginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", loginRequest{Email: email, Password: password}, &resp, model.CategoryAuth)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, model.NewNetworkError(model.CategoryAuth, errors.New("invalid login response"))
	}

	identity := *resp.User
	c.setAuth(resp.Token, &identity)

	cp := identity
	return &cp, nil
}

// SignOut はサーバー側のセッションを破棄し、ローカルの認証状態を消去する。
// サーバーが既にセッションを失効させている場合も成功とする。
func (c *Client) SignOut(ctx context.Context) error {
	token := c.currentToken()
	if token != "" {
		err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil, model.CategoryAuth)
		if err != nil && !model.HasCode(err, model.ErrCodeUnauthorized) {
			return err
		}
	}

	c.setAuth("", nil)
	return nil
}

// SubscribeAuthState は現在の認証状態を即座に通知し、以後の変化を通知する。
func (c *Client) SubscribeAuthState(fn func(*model.Identity)) backend.Unsubscribe {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	cancel := c.authState.Subscribe(fn)
	fn(c.currentIdentity())
	return backend.Unsubscribe(cancel)
}

// setAuth は認証状態を置き換えて購読者に通知する。
func (c *Client) setAuth(token string, identity *model.Identity) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.mu.Lock()
	c.token = token
	c.identity = identity
	c.mu.Unlock()

	c.authState.Publish(c.currentIdentity())
}

// expire はtokenが現在のトークンであれば認証状態を消去する。
// サーバーが401を返した場合に呼ばれる。
func (c *Client) expire(token string) {
	c.mu.Lock()
	current := c.token
	c.mu.Unlock()
	if current == "" || current != token {
		return
	}

	c.logger.Warn("session expired")
	c.setAuth("", nil)
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) currentIdentity() *model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	cp := *c.identity
	return &cp
}

// --- Store ---

// QueryByOwner はowner_idでフィルタしたライブクエリを返す。
func (c *Client) QueryByOwner(collection, ownerID string) backend.LiveQuery {
	return &liveQuery{client: c, collection: collection, owner: ownerID}
}

// UpdateFields はドキュメントのフィールドを部分更新する。
func (c *Client) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	path, err := documentPath(collection, id)
	if err != nil {
		return err
	}
	token := c.currentToken()
	if token == "" {
		return model.NewUnauthorizedError()
	}
	return c.do(ctx, http.MethodPatch, path, token, fields, nil, model.CategoryStore)
}

// DeleteRecord はドキュメントを削除する。
func (c *Client) DeleteRecord(ctx context.Context, collection, id string) error {
	path, err := documentPath(collection, id)
	if err != nil {
		return err
	}
	token := c.currentToken()
	if token == "" {
		return model.NewUnauthorizedError()
	}
	return c.do(ctx, http.MethodDelete, path, token, nil, nil, model.CategoryStore)
}

func documentPath(collection, id string) (string, error) {
	if collection != model.MessagesCollection {
		return "", model.NewUnknownCollectionError(collection)
	}
	return "/api/" + collection + "/" + url.PathEscape(id), nil
}

// --- HTTP ---

// do はJSONリクエストを送信し、2xxであればレスポンスをoutにデコードする。
// エラーレスポンスは*model.APIErrorに、通信エラーはNETWORK_ERRORに変換する。
func (c *Client) do(ctx context.Context, method, path, token string, in, out any, category string) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewNetworkError(category, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := decodeError(resp, category)
		if resp.StatusCode == http.StatusUnauthorized && token != "" {
			c.expire(token)
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return model.NewNetworkError(category, fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return nil
}

// decodeError はエラーレスポンスのボディを*model.APIErrorに変換する。
// 統一フォーマットでない場合はステータスコードから生成する。
func decodeError(resp *http.Response, category string) *model.APIError {
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Code != "" {
		return body.APIError()
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return model.NewUnauthorizedError()
	}
	return model.NewNetworkError(category, fmt.Errorf("unexpected status %d", resp.StatusCode))
}

// liveURL はライブクエリのWebSocket URLを返す。
func (c *Client) liveURL(collection, owner string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/" + collection + "/live?owner=" + url.QueryEscape(owner)
}
