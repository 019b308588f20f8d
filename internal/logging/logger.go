// Package logging は zap ベースの構造化ロガーと Gin 用のリクエストログを提供します。
package logging

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubjectKey はリクエストログに認証済みユーザーIDを載せるための Gin コンテキストキーです。
const SubjectKey = "logging.subject"

// New は Gin の実行モードに合わせたロガーを生成します。
// release モードでは JSON 形式、それ以外では開発者向けのコンソール形式になります。
func New(mode string) (*zap.Logger, error) {
	switch mode {
	case gin.ReleaseMode:
		return zap.NewProduction()
	case gin.TestMode:
		return zap.NewNop(), nil
	default:
		return zap.NewDevelopment()
	}
}

// Middleware は1リクエストごとに1行のアクセスログを出力するミドルウェアです。
func Middleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", c.ClientIP()),
		}
		if subject := c.GetString(SubjectKey); subject != "" {
			fields = append(fields, zap.String("subject", subject))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
