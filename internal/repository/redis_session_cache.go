package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/msgbox/internal/model"
)

const (
	sessionKeyPrefix     = "msgbox:session:"
	userSessionKeyPrefix = "msgbox:user_sessions:"
)

// RedisSessionCache はRedisを使用したセッションキャッシュ。
// セッション本体はJSONで保存し、ユーザー単位の削除のためにユーザーごとのセットでキーを管理する。
// キーにはトークンのダイジェストを使う。
type RedisSessionCache struct {
	client *redis.Client
}

// NewRedisSessionCache はRedisSessionCacheを生成する。
func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client}
}

// Get はキャッシュからセッションを取得する。キャッシュミスの場合はnilを返す。
func (c *RedisSessionCache) Get(ctx context.Context, id string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionKeyPrefix+sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode cached session: %w", err)
	}
	session.ID = id
	return &session, nil
}

// Set はセッションをttlの間キャッシュする。
func (c *RedisSessionCache) Set(ctx context.Context, session *model.Session, ttl time.Duration) error {
	stored := *session
	stored.ID = ""
	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	userKey := userSessionKeyPrefix + session.UserID
	pipe := c.client.TxPipeline()
	key := sessionKey(session.ID)
	pipe.Set(ctx, sessionKeyPrefix+key, data, ttl)
	pipe.SAdd(ctx, userKey, key)
	pipe.Expire(ctx, userKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache session: %w", err)
	}
	return nil
}

// Delete は指定IDのキャッシュを削除する。
func (c *RedisSessionCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, sessionKeyPrefix+sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションのキャッシュを削除する。
func (c *RedisSessionCache) DeleteByUserID(ctx context.Context, userID string) error {
	userKey := userSessionKeyPrefix + userID
	members, err := c.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list cached sessions: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, key := range members {
		keys = append(keys, sessionKeyPrefix+key)
	}
	keys = append(keys, userKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cached sessions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionCache = (*RedisSessionCache)(nil)
