// Package server は HTTP ルーターの組み立てを行います。
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/auth"
	"github.com/yourusername/inkpost/internal/config"
	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/logging"
	"github.com/yourusername/inkpost/internal/metrics"
	"github.com/yourusername/inkpost/internal/posts"
	"github.com/yourusername/inkpost/internal/storage"
	"github.com/yourusername/inkpost/internal/users"
)

const (
	serviceName = "inkpost-api"
	version     = "0.1.0"
)

// Deps はルーターが使う依存関係です。Avatars と Cleaner は省略できます。
type Deps struct {
	Config     *config.Config
	Identities identity.Repository
	Posts      posts.Repository
	Avatars    *storage.LocalStorage
	Cleaner    users.AvatarCleaner
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// New は全ルートを登録した Gin エンジンを返します。
func New(d Deps) (*gin.Engine, error) {
	if d.Config == nil {
		return nil, errors.New("config is nil")
	}
	if d.Identities == nil || d.Posts == nil {
		return nil, errors.New("repositories are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	tokens := auth.NewTokenManager(d.Config.JWTSecret, d.Config.TokenTTL, d.Now)
	authSvc, err := auth.NewService(d.Identities, tokens, d.Config.BcryptCost, d.Logger, d.Metrics)
	if err != nil {
		return nil, err
	}
	verifier := auth.NewVerifier(tokens, d.Identities, d.Metrics)

	postsSvc := posts.NewService(d.Posts, d.Identities, d.Config.PostsPageSize, d.Logger)
	var avatars users.AvatarStore
	if d.Avatars != nil {
		avatars = d.Avatars
	}
	usersSvc := users.NewService(d.Identities, postsSvc, avatars, users.Options{Cleaner: d.Cleaner, Logger: d.Logger})

	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(d.Logger), d.Metrics.Middleware())
	router.Use(cors.New(corsConfig(d.Config.CORSAllowedOrigins)))
	router.MaxMultipartMemory = d.Config.MaxAvatarSize + 1<<20

	router.GET("/health", handleHealth)
	router.GET("/metrics", d.Metrics.Handler())
	if d.Avatars != nil {
		router.Static("/uploads", d.Avatars.Dir())
	}

	requireAuth := auth.RequireAuth(verifier)
	authHandler := auth.NewHandler(authSvc)
	postsHandler := posts.NewHandler(postsSvc)
	usersHandler := users.NewHandler(usersSvc)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.GET("/me", requireAuth, authHandler.Me)
		}

		postRoutes := api.Group("/posts")
		{
			postRoutes.GET("", postsHandler.List)
			postRoutes.GET("/:id", postsHandler.Get)
			postRoutes.POST("", requireAuth, postsHandler.Create)
			postRoutes.PUT("/:id", requireAuth, postsHandler.Update)
			postRoutes.DELETE("/:id", requireAuth, postsHandler.Delete)
			postRoutes.POST("/:id/comments", requireAuth, postsHandler.AddComment)
		}

		api.DELETE("/comments/:id", requireAuth, postsHandler.DeleteComment)

		userRoutes := api.Group("/users")
		{
			userRoutes.GET("/profile", requireAuth, usersHandler.GetProfile)
			userRoutes.PUT("/profile", requireAuth, usersHandler.UpdateProfile)
			userRoutes.GET("/profile/avatar-jobs/:id", requireAuth, usersHandler.GetAvatarJob)
			userRoutes.GET("/:id", usersHandler.GetUser)
			userRoutes.GET("/:id/posts", usersHandler.GetUserPosts)
		}
	}

	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": version,
	})
}

// corsConfig はトークンを Authorization ヘッダーで受け取る前提の CORS 設定です。
// Cookie は使わないので AllowCredentials は不要です。
func corsConfig(allowed string) cors.Config {
	cfg := cors.DefaultConfig()
	var origins []string
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	return cfg
}
