package posts

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/inkpost/internal/auth"
)

// Handler は /api/posts と /api/comments のハンドラーです。
type Handler struct {
	svc *Service
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// List は GET /api/posts のハンドラーです。
func (h *Handler) List(c *gin.Context) {
	page, err := h.svc.List(c.Request.Context(), ListParams{
		Search: c.Query("search"),
		Page:   queryInt(c, "page"),
		Limit:  queryInt(c, "limit"),
	})
	if err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get は GET /api/posts/:id のハンドラーです。
func (h *Handler) Get(c *gin.Context) {
	post, comments, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": post, "comments": comments})
}

// Create は POST /api/posts のハンドラーです。
func (h *Handler) Create(c *gin.Context) {
	var req CreatePostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "title と content を JSON で送ってください",
		})
		return
	}

	post, err := h.svc.Create(c.Request.Context(), auth.MustContext(c), req)
	if err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// Update は PUT /api/posts/:id のハンドラーです。
// 本文の解析は存在確認・所有者確認の後で失敗させます。
func (h *Handler) Update(c *gin.Context) {
	var req UpdatePostInput
	bindErr := c.ShouldBindJSON(&req)
	if bindErr != nil {
		req = UpdatePostInput{}
	}

	post, err := h.svc.Update(c.Request.Context(), auth.MustContext(c), c.Param("id"), req)
	if err != nil && (bindErr == nil || auth.KindOf(err) != auth.KindValidation) {
		auth.Respond(c, err)
		return
	}
	if bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "title または content を JSON で送ってください",
		})
		return
	}
	c.JSON(http.StatusOK, post)
}

// Delete は DELETE /api/posts/:id のハンドラーです。
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), auth.MustContext(c), c.Param("id")); err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "投稿を削除しました"})
}

// AddComment は POST /api/posts/:id/comments のハンドラーです。
func (h *Handler) AddComment(c *gin.Context) {
	var req CommentInput
	bindErr := c.ShouldBindJSON(&req)
	if bindErr != nil {
		req = CommentInput{}
	}

	comment, err := h.svc.AddComment(c.Request.Context(), auth.MustContext(c), c.Param("id"), req)
	if err != nil && (bindErr == nil || auth.KindOf(err) != auth.KindValidation) {
		auth.Respond(c, err)
		return
	}
	if bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "content を JSON で送ってください",
		})
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// DeleteComment は DELETE /api/comments/:id のハンドラーです。
func (h *Handler) DeleteComment(c *gin.Context) {
	if err := h.svc.DeleteComment(c.Request.Context(), auth.MustContext(c), c.Param("id")); err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "コメントを削除しました"})
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
