// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// 開発モードでのみ使う署名鍵。release モードでは Validate で拒否されます。
const devJWTSecret = "inkpost-development-secret-change-me!!"

// minSecretLength は release モードで要求する JWT 署名鍵の最小バイト数です。
const minSecretLength = 32

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	JWTSecret  string        // セッショントークン署名用の秘密鍵 (HS256)
	TokenTTL   time.Duration // セッショントークンの有効期間
	BcryptCost int           // パスワードハッシュのコスト

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ストレージ設定
	DatabaseURL      string        // PostgreSQL 接続文字列（空ならインメモリ）
	RedisURL         string        // Redis 接続URL（空ならキャッシュ・ジョブ無効）
	IdentityCacheTTL time.Duration // ユーザー情報キャッシュの有効期間

	// アップロード設定
	UploadDir     string // アバター画像の保存先
	MaxAvatarSize int64  // アバター画像の最大サイズ（バイト）

	// 投稿一覧設定
	PostsPageSize int // 1ページあたりのデフォルト件数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// 認証設定
		JWTSecret:  getEnv("JWT_SECRET", ""),
		TokenTTL:   getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		BcryptCost: getEnvAsInt("BCRYPT_COST", 12),

		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		// ストレージ設定
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisURL:         getEnv("REDIS_URL", ""),
		IdentityCacheTTL: getEnvAsDuration("IDENTITY_CACHE_TTL", 5*time.Minute),

		// アップロード設定
		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		MaxAvatarSize: getEnvAsInt64("MAX_AVATAR_SIZE", 2*1024*1024), // 2MB

		// 投稿一覧設定
		PostsPageSize: getEnvAsInt("POSTS_PAGE_SIZE", 6),
	}

	if config.JWTSecret == "" && config.GinMode != "release" {
		config.JWTSecret = devJWTSecret
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}
	if c.PostsPageSize <= 0 {
		return fmt.Errorf("POSTS_PAGE_SIZE must be positive")
	}

	// 本番環境では厳格にチェックする
	if c.GinMode == "release" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in release mode")
		}
		if len(c.JWTSecret) < minSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes in release mode", minSecretLength)
		}
		if c.JWTSecret == devJWTSecret {
			return fmt.Errorf("JWT_SECRET must not use the development default in release mode")
		}
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 30m, 24h）。
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
