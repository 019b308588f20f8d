// Package auth はセッショントークンの発行・検証と所有者チェックを提供します。
package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler は /api/auth 配下のハンドラーです。
type Handler struct {
	svc *Service
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Register は POST /api/auth/register のハンドラーです。
func (h *Handler) Register(c *gin.Context) {
	var req RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "name, email, password を JSON で送ってください",
		})
		return
	}

	session, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// Login は POST /api/auth/login のハンドラーです。
func (h *Handler) Login(c *gin.Context) {
	var req LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "email と password を JSON で送ってください",
		})
		return
	}

	session, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Me は GET /api/auth/me のハンドラーです。
func (h *Handler) Me(c *gin.Context) {
	ac := MustContext(c)
	c.JSON(http.StatusOK, gin.H{"identity": ac.Identity})
}
