package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/msgbox/internal/backend/backendtest"
	"github.com/hitoshi/msgbox/internal/inbox"
	"github.com/hitoshi/msgbox/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type harness struct {
	fake    *backendtest.Fake
	inbox   *inbox.Controller
	session *Controller
}

func newHarness() *harness {
	fake := backendtest.New()
	fake.AddUser("u1", "a@example.com", "secret1")
	fake.AddUser("u2", "b@example.com", "secret2")
	list := inbox.NewController(fake, discardLogger())
	return &harness{
		fake:    fake,
		inbox:   list,
		session: NewController(fake, list, discardLogger()),
	}
}

// recordingList はStart/Stopの呼び出しを記録する。
type recordingList struct {
	calls []string
}

func (r *recordingList) Start(ownerID string) { r.calls = append(r.calls, "start:"+ownerID) }
func (r *recordingList) Stop()                { r.calls = append(r.calls, "stop") }

func TestController_StartDeliversCurrentState(t *testing.T) {
	list := &recordingList{}
	fake := backendtest.New()
	c := NewController(fake, list, discardLogger())

	c.Start()
	defer c.Close()

	if c.State().SignedIn() {
		t.Error("must start signed out")
	}
	if len(list.calls) != 1 || list.calls[0] != "stop" {
		t.Errorf("list calls = %v, want [stop]", list.calls)
	}
}

func TestController_OnAuthChanged(t *testing.T) {
	list := &recordingList{}
	c := NewController(backendtest.New(), list, discardLogger())

	c.OnAuthChanged(&model.Identity{ID: "u1", Email: "a@example.com"})
	if st := c.State(); st.Identity == nil || st.Identity.ID != "u1" {
		t.Fatalf("identity = %+v", st.Identity)
	}

	c.OnAuthChanged(nil)
	if c.State().SignedIn() {
		t.Error("identity must be cleared")
	}

	want := []string{"start:u1", "stop"}
	if len(list.calls) != len(want) || list.calls[0] != want[0] || list.calls[1] != want[1] {
		t.Errorf("list calls = %v, want %v", list.calls, want)
	}
}

// サインイン成功からライブ一覧表示までのシナリオ
func TestScenario_SignInThenEmptyList(t *testing.T) {
	h := newHarness()
	h.session.Start()
	defer h.session.Close()

	h.fake.HoldSnapshots(true)
	h.session.UpdateForm("a@example.com", "secret1")

	if err := h.session.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	st := h.session.State()
	if !st.SignedIn() || st.Identity.Email != "a@example.com" {
		t.Fatalf("session state = %+v", st)
	}
	if st.Email != "" || st.Password != "" || st.Alert != "" {
		t.Errorf("form and alert must be cleared: %+v", st)
	}

	ist := h.inbox.State()
	if !ist.Active || !ist.Loading || ist.OwnerID != "u1" {
		t.Fatalf("inbox state before snapshot = %+v", ist)
	}

	h.fake.Flush()

	ist = h.inbox.State()
	if ist.Loading || ist.Messages == nil || len(ist.Messages) != 0 {
		t.Errorf("inbox state after empty snapshot = %+v", ist)
	}
	if h.fake.ActiveQueries() != 1 {
		t.Errorf("ActiveQueries = %d, want 1", h.fake.ActiveQueries())
	}
}

// 誤った認証情報でのサインイン
func TestScenario_InvalidCredentials(t *testing.T) {
	h := newHarness()
	h.session.Start()
	defer h.session.Close()

	err := h.session.SignIn(context.Background(), "a@example.com", "wrong")
	if err == nil {
		t.Fatal("expected error")
	}

	st := h.session.State()
	if st.SignedIn() {
		t.Error("session must stay absent")
	}
	if st.Alert != model.NewInvalidCredentialsError().Message {
		t.Errorf("alert = %q, want provider message", st.Alert)
	}
	if st.Pending {
		t.Error("pending must be cleared")
	}
	if msgs := h.inbox.State().Messages; len(msgs) != 0 {
		t.Errorf("list must be empty: %v", msgs)
	}
	if h.fake.ActiveQueries() != 0 {
		t.Errorf("ActiveQueries = %d, want 0", h.fake.ActiveQueries())
	}

	h.session.DismissAlert()
	if h.session.State().Alert != "" {
		t.Error("alert must be dismissed")
	}
}

func TestController_SignInErrorMessageVerbatim(t *testing.T) {
	h := newHarness()
	h.fake.SignInErr = errors.New("too many attempts, try later")

	_ = h.session.SignIn(context.Background(), "a@example.com", "secret1")

	if got := h.session.State().Alert; got != "too many attempts, try later" {
		t.Errorf("alert = %q", got)
	}
}

func TestController_SignOutClearsList(t *testing.T) {
	h := newHarness()
	h.fake.InsertMessage(&model.Message{ID: "m1", OwnerID: "u1"})
	h.session.Start()
	defer h.session.Close()

	if err := h.session.SignIn(context.Background(), "a@example.com", "secret1"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if len(h.inbox.State().Messages) != 1 {
		t.Fatalf("messages = %v", h.inbox.State().Messages)
	}

	if err := h.session.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	if h.session.State().SignedIn() {
		t.Error("identity must be cleared")
	}
	ist := h.inbox.State()
	if ist.Active || ist.Messages != nil {
		t.Errorf("inbox must be stopped and empty: %+v", ist)
	}
	if h.fake.ActiveQueries() != 0 {
		t.Errorf("ActiveQueries = %d, want 0", h.fake.ActiveQueries())
	}
}

func TestController_SignOutFailureKeepsState(t *testing.T) {
	h := newHarness()
	h.session.Start()
	defer h.session.Close()
	_ = h.session.SignIn(context.Background(), "a@example.com", "secret1")

	h.fake.SignOutErr = model.NewNetworkError(model.CategoryAuth, errors.New("offline"))
	if err := h.session.SignOut(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	st := h.session.State()
	if !st.SignedIn() {
		t.Error("identity must be kept on failure")
	}
	if st.Alert == "" {
		t.Error("alert must be set")
	}
	if !h.inbox.State().Active {
		t.Error("subscription must be kept on failure")
	}
}

func TestController_SwitchUserReplacesSubscription(t *testing.T) {
	h := newHarness()
	h.fake.InsertMessage(&model.Message{ID: "a1", OwnerID: "u1"})
	h.fake.InsertMessage(&model.Message{ID: "b1", OwnerID: "u2"})
	h.session.Start()
	defer h.session.Close()

	_ = h.session.SignIn(context.Background(), "a@example.com", "secret1")
	_ = h.session.SignIn(context.Background(), "b@example.com", "secret2")

	ist := h.inbox.State()
	if ist.OwnerID != "u2" || len(ist.Messages) != 1 || ist.Messages[0].ID != "b1" {
		t.Errorf("inbox state = %+v", ist)
	}
	if h.fake.ActiveQueries() != 1 {
		t.Errorf("ActiveQueries = %d, want 1", h.fake.ActiveQueries())
	}
}

func TestController_ServerSideExpiry(t *testing.T) {
	h := newHarness()
	h.session.Start()
	defer h.session.Close()
	_ = h.session.SignIn(context.Background(), "a@example.com", "secret1")

	h.fake.Expire()

	if h.session.State().SignedIn() {
		t.Error("identity must be cleared after expiry")
	}
	if h.inbox.State().Active {
		t.Error("subscription must be released after expiry")
	}
}

func TestController_CloseReleasesEverything(t *testing.T) {
	h := newHarness()
	h.session.Start()
	_ = h.session.SignIn(context.Background(), "a@example.com", "secret1")

	h.session.Close()

	if h.fake.ActiveQueries() != 0 {
		t.Errorf("ActiveQueries = %d, want 0", h.fake.ActiveQueries())
	}

	// Close後の認証状態変化は反映されない
	h.fake.Expire()
	if !h.session.State().SignedIn() {
		t.Error("auth changes after Close must be ignored")
	}
}

func TestController_ObserversSeePending(t *testing.T) {
	h := newHarness()
	var sawPending bool
	h.session.Subscribe(func(st State) {
		if st.Pending {
			sawPending = true
		}
	})

	_ = h.session.SignIn(context.Background(), "a@example.com", "secret1")

	if !sawPending {
		t.Error("observers must see the pending state")
	}
	if h.session.State().Pending {
		t.Error("pending must be cleared after completion")
	}
}
