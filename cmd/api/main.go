// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/config"
	"github.com/yourusername/inkpost/internal/database"
	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/logging"
	"github.com/yourusername/inkpost/internal/metrics"
	"github.com/yourusername/inkpost/internal/posts"
	"github.com/yourusername/inkpost/internal/server"
	"github.com/yourusername/inkpost/internal/storage"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	logger, err := logging.New(cfg.GinMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run は依存関係を組み立ててサーバーを起動します。
// 戻る前に必ず DB / Redis の接続を閉じます。
func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := setupDeps(ctx, cfg, logger)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("failed to set up dependencies: %w", err)
	}

	router, err := server.New(deps)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting API server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// setupDeps は設定に応じて保存先を選びます。
// DATABASE_URL が空ならインメモリ、REDIS_URL があればキャッシュとジョブキューを有効にします。
func setupDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (server.Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := server.Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if cfg.DatabaseURL != "" {
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return deps, cleanup, err
		}
		closers = append(closers, func() { db.Close() })
		if err := database.Migrate(ctx, db); err != nil {
			return deps, cleanup, err
		}
		deps.Identities = identity.NewPostgresRepository(db)
		deps.Posts = posts.NewPostgresRepository(db)
	} else {
		logger.Warn("DATABASE_URL is empty, using in-memory storage")
		deps.Identities = identity.NewMemoryRepository()
		deps.Posts = posts.NewMemoryRepository()
	}

	avatars, err := storage.NewLocalStorage(cfg.UploadDir, cfg.MaxAvatarSize)
	if err != nil {
		return deps, cleanup, err
	}
	deps.Avatars = avatars

	if cfg.RedisURL != "" {
		cached, cleaner, closeRedis, err := setupRedis(cfg, deps.Identities, avatars, logger)
		if err != nil {
			return deps, cleanup, err
		}
		closers = append(closers, closeRedis)
		deps.Identities = cached
		deps.Cleaner = cleaner
	}

	return deps, cleanup, nil
}
