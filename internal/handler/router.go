package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/msgbox/internal/metrics"
	"github.com/hitoshi/msgbox/internal/middleware"
)

// HealthChecker は依存先（DB）の疎通確認を行う関数。
type HealthChecker func(ctx context.Context) error

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface

	// メッセージ
	MessageService MessageServiceInterface
	LiveHandler    *LiveHandler

	// 運用
	Health         HealthChecker
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	Logger *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SecurityHeaders → Session → RateLimit(General)
//
// /auth/login は未認証のため、Sessionの代わりにIP単位のレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, logger)
	msgHandler := NewMessageHandler(deps.MessageService, logger)

	r.Get("/health", healthHandler(deps.Health, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	sessionMW := middleware.NewSessionMiddleware(deps.SessionFinder, logger)

	r.Route("/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(sessionMW)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
	})

	// ミドルウェアスタック: Session → RateLimit(General)
	r.Route("/api", func(r chi.Router) {
		r.Use(sessionMW)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/messages", func(r chi.Router) {
			r.Get("/", msgHandler.ListMessages)
			if deps.LiveHandler != nil {
				r.Get("/live", deps.LiveHandler.Live)
			}
			r.Patch("/{id}", msgHandler.UpdateMessage)
			r.Delete("/{id}", msgHandler.DeleteMessage)
		})
	})

	return r
}

// healthHandler は依存先の疎通確認結果を返す。
// GET /health
func healthHandler(check HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
