package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/msgbox/internal/livequery"
	"github.com/hitoshi/msgbox/internal/metrics"
	"github.com/hitoshi/msgbox/internal/middleware"
	"github.com/hitoshi/msgbox/internal/model"
)

// --- テスト用の依存 ---

type stubSessionFinder struct{}

func (stubSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	switch id {
	case "token-1":
		return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
	case "token-2":
		return &model.Session{ID: id, UserID: "user-2", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return nil, nil
}

// memoryMessages はHubのLoaderとして使うメモリ上のメッセージ一覧。
type memoryMessages struct {
	mu   sync.Mutex
	data map[string][]*model.Message
}

func (m *memoryMessages) ListByOwner(ctx context.Context, ownerID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Message{}, m.data[ownerID]...), nil
}

func (m *memoryMessages) set(ownerID string, messages ...*model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[ownerID] = messages
}

type testServer struct {
	server *httptest.Server
	hub    *livequery.Hub
	store  *memoryMessages
	live   *LiveHandler
}

func newTestServer(t *testing.T, health HealthChecker) *testServer {
	t.Helper()
	return newTestServerWithMetrics(t, health, nil)
}

// newTestServerWithMetrics はhubとルーターで同じcollectorを共有するテストサーバーを返す。
func newTestServerWithMetrics(t *testing.T, health HealthChecker, collector metrics.MetricsCollector) *testServer {
	t.Helper()

	logger := discardLogger()
	store := &memoryMessages{data: make(map[string][]*model.Message)}
	hub := livequery.NewHub(store, collector, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(600, 600), logger)
	live := NewLiveHandler(hub, 50*time.Millisecond, logger)

	router := NewRouter(&RouterDeps{
		SessionFinder:     stubSessionFinder{},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		AuthService: &mockAuthService{
			signInFn: func(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
				return &model.User{ID: "user-1", Email: email},
					&model.Session{ID: "token-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
			},
		},
		MessageService: &mockMessageService{listByOwnerFn: store.ListByOwner},
		LiveHandler:    live,
		Health:         health,
		Metrics:        collector,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		}),
		Logger: logger,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		live.Shutdown()
		srv.Close()
		cancel()
		rl.Stop()
	})

	return &testServer{server: srv, hub: hub, store: store, live: live}
}

func (ts *testServer) dial(t *testing.T, token, owner string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/api/messages/live?owner=" + owner
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, conn *websocket.Conn) LiveFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame LiveFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

// --- テスト ---

func TestRouter_Health(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context) error { return nil })

	resp, err := http.Get(ts.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRouter_Health_Unavailable(t *testing.T) {
	ts := newTestServer(t, func(ctx context.Context) error { return errors.New("db down") })

	resp, err := http.Get(ts.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRouter_Metrics(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Get(ts.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRouter_LoginWithoutSession(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.server.URL+"/auth/login", "application/json",
		strings.NewReader(`{"email":"a@example.com","password":"secret1"}`))
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestRouter_ProtectedRoutesRequireBearer(t *testing.T) {
	ts := newTestServer(t, nil)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodGet, "/api/messages?owner=user-1"},
		{http.MethodPatch, "/api/messages/m1"},
		{http.MethodDelete, "/api/messages/m1"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req, _ := http.NewRequest(rt.method, ts.server.URL+rt.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
			}
		})
	}
}

func TestRouter_ListMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.set("user-1", &model.Message{ID: "m1", OwnerID: "user-1", Text: "hello"})

	req, _ := http.NewRequest(http.MethodGet, ts.server.URL+"/api/messages?owner=user-1", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var body ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Records) != 1 || body.Records[0].ID != "m1" {
		t.Errorf("records = %+v", body.Records)
	}
}

func TestLive_InitialAndUpdatedSnapshots(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.store.set("user-1", &model.Message{ID: "m1", OwnerID: "user-1", Text: "hello"})

	conn, _, err := ts.dial(t, "token-1", "user-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame.Type != FrameTypeSnapshot {
		t.Errorf("type = %q, want %q", frame.Type, FrameTypeSnapshot)
	}
	if len(frame.Records) != 1 || frame.Records[0].ID != "m1" {
		t.Fatalf("initial records = %+v", frame.Records)
	}

	ts.store.set("user-1",
		&model.Message{ID: "m1", OwnerID: "user-1", Text: "hello", Seen: true},
		&model.Message{ID: "m2", OwnerID: "user-1", Text: "world"},
	)
	ts.hub.Notify("user-1")

	frame = readFrame(t, conn)
	if len(frame.Records) != 2 {
		t.Fatalf("updated records = %+v", frame.Records)
	}
	if frame.Records[0].Fields["seen"] != true {
		t.Errorf("m1 seen = %v, want true", frame.Records[0].Fields["seen"])
	}
}

func TestLive_EmptySnapshotIsDelivered(t *testing.T) {
	ts := newTestServer(t, nil)

	conn, _, err := ts.dial(t, "token-1", "user-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frame := readFrame(t, conn)
	if frame.Records == nil || len(frame.Records) != 0 {
		t.Errorf("records = %#v, want empty non-nil", frame.Records)
	}
}

func TestLive_RejectsOtherOwner(t *testing.T) {
	ts := newTestServer(t, nil)

	_, resp, err := ts.dial(t, "token-2", "user-1")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestLive_RejectsMissingToken(t *testing.T) {
	ts := newTestServer(t, nil)

	_, resp, err := ts.dial(t, "", "user-1")
	if err == nil {
		t.Fatal("expected dial error")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestLive_SubscriptionReleasedOnDisconnect(t *testing.T) {
	ts := newTestServer(t, nil)

	conn, _, err := ts.dial(t, "token-1", "user-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readFrame(t, conn)

	if got := ts.hub.SubscriberCount("user-1"); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.SubscriberCount("user-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription was not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// 1接続あたり購読数ゲージが1だけ増減することを検証
func TestLive_SubscriptionGaugeCountsOncePerConnection(t *testing.T) {
	reg := prometheus.NewRegistry()
	ts := newTestServerWithMetrics(t, nil, metrics.NewCollector(reg))

	gauge := func() float64 {
		t.Helper()
		families, err := reg.Gather()
		if err != nil {
			t.Fatalf("gather: %v", err)
		}
		for _, mf := range families {
			if mf.GetName() == "msgbox_live_subscriptions" {
				return mf.GetMetric()[0].GetGauge().GetValue()
			}
		}
		t.Fatal("msgbox_live_subscriptions not registered")
		return 0
	}

	conn, _, err := ts.dial(t, "token-1", "user-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readFrame(t, conn)

	if got := gauge(); got != 1 {
		t.Fatalf("msgbox_live_subscriptions = %v with one open connection, want 1", got)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for gauge() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("msgbox_live_subscriptions = %v after disconnect, want 0", gauge())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLive_ShutdownClosesConnection(t *testing.T) {
	ts := newTestServer(t, nil)

	conn, _, err := ts.dial(t, "token-1", "user-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readFrame(t, conn)

	ts.live.Shutdown()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read error = %v, want close going away", err)
	}
}
