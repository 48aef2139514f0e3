package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/msgbox/internal/model"
)

// newTestChain はサーバーと同じ順序でミドルウェアを組み立てる。
func newTestChain(logger *slog.Logger, rl *RateLimiter, h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(logger))
	r.Use(NewLoggingMiddleware(logger, nil))
	r.Use(NewCORSMiddleware("http://localhost:3000"))
	r.Use(NewSecurityHeadersMiddleware())

	r.Route("/api", func(r chi.Router) {
		r.Use(NewSessionMiddleware(validSessionRepo(), logger))
		r.Use(rl.GeneralMiddleware())
		r.Get("/messages", h)
	})
	r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return r
}

func TestMiddlewareChain_AuthenticatedRequest(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(), discardLogger())
	defer rl.Stop()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var capturedUserID string
	router := newTestChain(logger, rl, func(w http.ResponseWriter, r *http.Request) {
		capturedUserID, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want user-123", capturedUserID)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers must be applied")
	}
	if !strings.Contains(buf.String(), `"user_id":"user-123"`) {
		t.Errorf("log must include user_id: %s", buf.String())
	}
}

func TestMiddlewareChain_UnauthenticatedRequest(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(), discardLogger())
	defer rl.Stop()

	router := newTestChain(discardLogger(), rl, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("CORS headers must be applied to error responses")
	}
}

func TestMiddlewareChain_RecoversPanic(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig(), discardLogger())
	defer rl.Stop()

	router := newTestChain(discardLogger(), rl, func(w http.ResponseWriter, r *http.Request) {})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w.Body)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}
