// Package jobs は Asynq によるバックグラウンドジョブを提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Deleter は公開パスで指定されたファイルを削除します。
type Deleter interface {
	Delete(publicPath string) error
}

// AvatarWorker は avatar:delete タスクを処理します。
type AvatarWorker struct {
	store   *Store
	deleter Deleter
	logger  *zap.Logger
}

// NewAvatarWorker は AvatarWorker を作成します。
func NewAvatarWorker(store *Store, deleter Deleter, logger *zap.Logger) *AvatarWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvatarWorker{store: store, deleter: deleter, logger: logger}
}

// ProcessTask は asynq.Handler の実装です。
// ペイロードが壊れている場合は再試行しません。
func (w *AvatarWorker) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload AvatarDeletePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" || payload.Path == "" {
		return fmt.Errorf("jobId and path are required: %w", asynq.SkipRetry)
	}

	w.recordStatus(ctx, payload.JobID, w.store.MarkRunning)

	if err := w.deleter.Delete(payload.Path); err != nil {
		w.logger.Warn("avatar delete failed", zap.String("job", payload.JobID), zap.String("path", payload.Path), zap.Error(err))
		w.recordStatus(ctx, payload.JobID, func(ctx context.Context, id string) error {
			return w.store.MarkFailed(ctx, id, &ErrorInfo{Code: "DELETE_FAILED", Message: err.Error()})
		})
		return err
	}

	w.recordStatus(ctx, payload.JobID, w.store.MarkDone)
	w.logger.Info("avatar deleted", zap.String("job", payload.JobID), zap.String("path", payload.Path))
	return nil
}

// 状態記録の失敗ではタスク自体を失敗させない
func (w *AvatarWorker) recordStatus(ctx context.Context, jobID string, fn func(context.Context, string) error) {
	if w.store == nil {
		return
	}
	if err := fn(ctx, jobID); err != nil && !errors.Is(err, ErrJobNotFound) {
		w.logger.Warn("failed to record job status", zap.String("job", jobID), zap.Error(err))
	}
}
