package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "inkpost:identity:"

// CachedRepository は FindByID の結果を Redis にキャッシュする Repository です。
// トークン検証はリクエストごとに FindByID を呼ぶため、そこだけをキャッシュします。
// パスワードハッシュはキャッシュに含めません。
type CachedRepository struct {
	Repository
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRepository は next を Redis キャッシュで包みます。
func NewCachedRepository(next Repository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRepository{Repository: next, redis: client, ttl: ttl, logger: logger}
}

func (r *CachedRepository) FindByID(ctx context.Context, id string) (*Identity, error) {
	key := cacheKeyPrefix + id

	data, err := r.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Identity
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return &cached, nil
		}
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("identity cache read failed", zap.String("id", id), zap.Error(err))
	}

	identity, err := r.Repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(identity); err == nil {
		if err := r.redis.Set(ctx, key, payload, r.ttl).Err(); err != nil {
			r.logger.Warn("identity cache write failed", zap.String("id", id), zap.Error(err))
		}
	}
	return identity, nil
}

func (r *CachedRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Identity, error) {
	identity, err := r.Repository.UpdateProfile(ctx, id, update)
	if err != nil {
		return nil, err
	}
	r.Invalidate(ctx, id)
	return identity, nil
}

// Invalidate はキャッシュエントリを削除します。
func (r *CachedRepository) Invalidate(ctx context.Context, id string) {
	if err := r.redis.Del(ctx, cacheKeyPrefix+id).Err(); err != nil {
		r.logger.Warn("identity cache invalidate failed", zap.String("id", id), zap.Error(err))
	}
}
