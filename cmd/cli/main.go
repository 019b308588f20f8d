// Package main は inkpost のコマンドラインクライアントです。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/yourusername/inkpost/internal/client/api"
	"github.com/yourusername/inkpost/internal/client/cli"
	"github.com/yourusername/inkpost/internal/client/guard"
	"github.com/yourusername/inkpost/internal/client/session"
)

func main() {
	_ = godotenv.Load(".env.local")

	serverURL := flag.String("server", getEnv("INKPOST_SERVER", "http://localhost:8080"), "API server base URL")
	stateDir := flag.String("state", os.Getenv("INKPOST_STATE_DIR"), "directory for the saved session")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *serverURL, *stateDir, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, serverURL, stateDir string, args []string) error {
	if stateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config dir: %w", err)
		}
		stateDir = filepath.Join(base, "inkpost")
	}
	storage, err := session.NewFileStorage(stateDir)
	if err != nil {
		return err
	}

	store := session.NewStore(storage)
	if err := store.Rehydrate(); err != nil {
		if !errors.Is(err, session.ErrCorrupt) {
			return err
		}
		fmt.Fprintln(os.Stderr, "保存されたセッションが壊れていたため削除しました")
	}

	client := api.New(serverURL, store, nil)
	nav := guard.NewNavigator(store, nil)
	return cli.NewApp(client, nav, os.Stdin, os.Stdout).Run(ctx, args)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
