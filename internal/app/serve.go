package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/msgbox/internal/auth"
	"github.com/hitoshi/msgbox/internal/config"
	"github.com/hitoshi/msgbox/internal/database"
	"github.com/hitoshi/msgbox/internal/handler"
	"github.com/hitoshi/msgbox/internal/livequery"
	"github.com/hitoshi/msgbox/internal/message"
	"github.com/hitoshi/msgbox/internal/metrics"
	"github.com/hitoshi/msgbox/internal/middleware"
	"github.com/hitoshi/msgbox/internal/repository"
)

// shutdownTimeout はグレースフルシャットダウンの上限。
const shutdownTimeout = 30 * time.Second

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newSessionRepository はセッションリポジトリを構築する。
// REDIS_URLが設定されている場合はRedisキャッシュを前段に置く。
// 返すcleanupは呼び出し元が終了時に呼び出す。
func newSessionRepository(ctx context.Context, cfg *config.Config, db *sql.DB, logger *slog.Logger) (repository.SessionRepository, func(), error) {
	var sessions repository.SessionRepository = repository.NewPostgresSessionRepo(db)
	if cfg.RedisURL == "" {
		return sessions, func() {}, nil
	}

	rdb, err := database.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open redis: %w", err)
	}
	logger.Info("session cache enabled", slog.Duration("ttl", cfg.SessionCacheTTL))

	cached := repository.NewCachedSessionRepo(sessions, repository.NewRedisSessionCache(rdb), cfg.SessionCacheTTL, logger)
	return cached, func() { rdb.Close() }, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	logger := slog.Default()

	ctx, stop := signalContext()
	defer stop()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	sessionRepo, closeCache, err := newSessionRepository(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. ライブクエリ
	hub := livequery.NewHub(messageRepo, collector, logger)
	listener, err := database.NewChangeListener(cfg.DatabaseURL, database.MessageChangesChannel, logger)
	if err != nil {
		return fmt.Errorf("failed to start change listener: %w", err)
	}

	go func() {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("live query hub stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		if err := listener.Run(ctx, hub.Notify); err != nil {
			logger.Error("change listener stopped", slog.String("error", err.Error()))
		}
	}()

	// 5. ドメインサービスの初期化
	authService := auth.NewService(
		auth.NewBcryptHasher(), userRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		logger,
	)
	messageService := message.NewService(messageRepo, hub, collector, logger)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
		logger,
	)
	defer rateLimiter.Stop()

	liveHandler := handler.NewLiveHandler(hub, cfg.LivePingInterval, logger)

	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AuthService:       authService,
		MessageService:    messageService,
		LiveHandler:       liveHandler,
		Health:            db.PingContext,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(registry),
		Logger:            logger,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	// ライブ接続はハイジャック済みのためShutdownの対象外。個別に閉じる
	server.RegisterOnShutdown(liveHandler.Shutdown)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	}
	logger.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("API server stopped gracefully")
	return nil
}
