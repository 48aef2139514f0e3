package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/msgbox/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	deleteByIDFn  func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.findByEmailFn(ctx, email)
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- テスト ---

// TestService_Withdraw はセッション、ユーザーの順に削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var calls []string

	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email != "a@example.com" {
				t.Errorf("email = %q, want normalized a@example.com", email)
			}
			return &model.User{ID: "user-1", Email: email}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			calls = append(calls, "user:"+id)
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			calls = append(calls, "sessions:"+userID)
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, discardLogger())
	id, err := svc.Withdraw(context.Background(), "  A@Example.com ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "user-1" {
		t.Errorf("id = %q, want user-1", id)
	}
	if len(calls) != 2 || calls[0] != "sessions:user-1" || calls[1] != "user:user-1" {
		t.Errorf("calls = %v, want [sessions:user-1 user:user-1]", calls)
	}
}

// TestService_Withdraw_NotFound は存在しないアカウントでErrNotFoundを返すことを検証する。
func TestService_Withdraw_NotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Error("DeleteByID must not be called")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			t.Error("DeleteByUserID must not be called")
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, discardLogger())
	if _, err := svc.Withdraw(context.Background(), "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestService_Withdraw_SessionDeleteFails はセッション削除の失敗時にユーザーを削除しないことを検証する。
func TestService_Withdraw_SessionDeleteFails(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Error("DeleteByID must not be called after session delete failure")
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db down")
		},
	}

	svc := NewService(userRepo, sessionRepo, discardLogger())
	if _, err := svc.Withdraw(context.Background(), "a@example.com"); err == nil {
		t.Fatal("expected error")
	}
}
