package main

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/config"
	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/jobs"
	"github.com/yourusername/inkpost/internal/storage"
	"github.com/yourusername/inkpost/internal/users"
)

var _ users.AvatarCleaner = (*avatarCleaner)(nil)

// avatarCleaner は users.AvatarCleaner を jobs.Manager に橋渡しします。
type avatarCleaner struct {
	manager *jobs.Manager
}

func (a *avatarCleaner) ScheduleAvatarDelete(ctx context.Context, ownerID, path string) (string, error) {
	return a.manager.ScheduleAvatarDelete(ctx, ownerID, path)
}

func (a *avatarCleaner) AvatarJob(ctx context.Context, jobID string) (*users.CleanupJob, error) {
	record, err := a.manager.GetRecord(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return nil, users.ErrJobNotFound
		}
		return nil, err
	}
	return cleanupJob(record), nil
}

func cleanupJob(record *jobs.Record) *users.CleanupJob {
	job := &users.CleanupJob{
		ID:        record.JobID,
		OwnerID:   record.OwnerID,
		Status:    string(record.Status),
		UpdatedAt: record.UpdatedAt,
	}
	if record.Error != nil {
		job.Error = record.Error.Message
	}
	return job
}

// setupRedis は Identity キャッシュとアバター削除ワーカーを初期化します。
func setupRedis(cfg *config.Config, repo identity.Repository, avatars *storage.LocalStorage, logger *zap.Logger) (identity.Repository, *avatarCleaner, func(), error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	redisClient := redis.NewClient(opt)

	cached := identity.NewCachedRepository(repo, redisClient, cfg.IdentityCacheTTL, logger)

	store := jobs.NewStore(redisClient, 0)
	worker := jobs.NewAvatarWorker(store, avatars, logger)
	manager, err := jobs.NewManager(cfg.RedisURL, store, worker, logger)
	if err != nil {
		redisClient.Close()
		return nil, nil, nil, err
	}
	manager.StartWorkers()

	closeAll := func() {
		if err := manager.Shutdown(); err != nil {
			logger.Warn("failed to stop job manager", zap.Error(err))
		}
		redisClient.Close()
	}
	return cached, &avatarCleaner{manager: manager}, closeAll, nil
}
