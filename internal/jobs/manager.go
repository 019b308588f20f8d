package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Manager はジョブの投入とワーカーの起動を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	logger *zap.Logger
}

// NewManager は Redis URL から Asynq のクライアントとサーバーを初期化します。
func NewManager(redisURL string, store *Store, worker *AvatarWorker, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if worker == nil {
		return nil, errors.New("worker is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{queueName: 1},
		Logger:      logger.Sugar(),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskTypeAvatarDelete, worker)

	return &Manager{
		client: asynq.NewClient(opt),
		server: server,
		mux:    mux,
		store:  store,
		logger: logger,
	}, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", zap.Error(err))
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown() error {
	m.server.Shutdown()
	return m.client.Close()
}

// ScheduleAvatarDelete は古いアバター画像の削除をキューに投入し、ジョブ ID を返します。
// ownerID は記録の参照を依頼したユーザーに限るために保存します。
func (m *Manager) ScheduleAvatarDelete(ctx context.Context, ownerID, path string) (string, error) {
	task, jobID, err := NewAvatarDeleteTask(path)
	if err != nil {
		return "", err
	}
	record := &Record{JobID: jobID, Type: TaskTypeAvatarDelete, OwnerID: ownerID, Path: path}
	if err := m.store.Create(ctx, record); err != nil {
		return "", fmt.Errorf("failed to create job record: %w", err)
	}
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(3), asynq.TaskID(jobID)); err != nil {
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return jobID, nil
}

// GetRecord はジョブ情報を取得します。存在しない場合は ErrJobNotFound を返します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// NewAvatarDeleteTask は avatar:delete タスクを作成します。
func NewAvatarDeleteTask(path string) (*asynq.Task, string, error) {
	if path == "" {
		return nil, "", errors.New("path is required")
	}
	jobID := uuid.NewString()
	body, err := json.Marshal(AvatarDeletePayload{JobID: jobID, Path: path})
	if err != nil {
		return nil, "", err
	}
	return asynq.NewTask(TaskTypeAvatarDelete, body, asynq.Queue(queueName)), jobID, nil
}
