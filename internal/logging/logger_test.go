package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareLogsSubjectAndLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	router := gin.New()
	router.Use(Middleware(logger))
	router.GET("/ok", func(c *gin.Context) {
		c.Set(SubjectKey, "user-1")
		c.Status(http.StatusOK)
	})
	router.GET("/denied", func(c *gin.Context) {
		c.Status(http.StatusForbidden)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/denied", nil))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("unexpected level for 200: %s", entries[0].Level)
	}
	if got := entries[0].ContextMap()["subject"]; got != "user-1" {
		t.Fatalf("subject not logged: %v", got)
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected level for 403: %s", entries[1].Level)
	}
}

func TestNewTestModeIsNop(t *testing.T) {
	logger, err := New(gin.TestMode)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatal("test mode logger should discard output")
	}
}
