package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/msgbox/internal/model"
)

// CachedSessionRepo はSessionCacheを前段に置いたSessionRepository。
// キャッシュの障害時はログに記録して内側のリポジトリにフォールバックする。
type CachedSessionRepo struct {
	inner  SessionRepository
	cache  SessionCache
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewCachedSessionRepo はCachedSessionRepoを生成する。
func NewCachedSessionRepo(inner SessionRepository, cache SessionCache, ttl time.Duration, logger *slog.Logger) *CachedSessionRepo {
	return &CachedSessionRepo{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Create はセッションを作成し、キャッシュにも格納する。
func (r *CachedSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if err := r.inner.Create(ctx, session); err != nil {
		return err
	}
	r.store(ctx, session)
	return nil
}

// FindByID はキャッシュを優先してセッションを取得する。期限切れの場合はnilを返す。
func (r *CachedSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	cached, err := r.cache.Get(ctx, id)
	if err != nil {
		r.logger.Warn("session cache read failed",
			slog.String("error", err.Error()),
		)
	}
	if cached != nil {
		if cached.ExpiresAt.After(r.now()) {
			return cached, nil
		}
		r.evict(ctx, id)
		return nil, nil
	}

	session, err := r.inner.FindByID(ctx, id)
	if err != nil || session == nil {
		return session, err
	}
	r.store(ctx, session)
	return session, nil
}

// DeleteByID はセッションを削除し、キャッシュからも取り除く。
func (r *CachedSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.inner.DeleteByID(ctx, id); err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除し、キャッシュからも取り除く。
func (r *CachedSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if err := r.inner.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	if err := r.cache.DeleteByUserID(ctx, userID); err != nil {
		r.logger.Warn("session cache invalidation failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// store はセッションの残り有効期間とTTLの短い方でキャッシュする。
func (r *CachedSessionRepo) store(ctx context.Context, session *model.Session) {
	ttl := r.ttl
	if remaining := session.ExpiresAt.Sub(r.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	if err := r.cache.Set(ctx, session, ttl); err != nil {
		r.logger.Warn("session cache write failed",
			slog.String("error", err.Error()),
		)
	}
}

func (r *CachedSessionRepo) evict(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, id); err != nil {
		r.logger.Warn("session cache invalidation failed",
			slog.String("error", err.Error()),
		)
	}
}

// compile-time interface check
var _ SessionRepository = (*CachedSessionRepo)(nil)
