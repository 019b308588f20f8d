package users

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/inkpost/internal/auth"
)

// Handler は /api/users 配下のハンドラーです。
type Handler struct {
	svc *Service
}

// NewHandler は Handler を作成します。
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// GetProfile は GET /api/users/profile のハンドラーです。
func (h *Handler) GetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Profile(auth.MustContext(c)))
}

type profileRequest struct {
	Name *string `json:"name"`
}

// UpdateProfile は PUT /api/users/profile のハンドラーです。
// JSON の {name} か、multipart/form-data の name と profilePic を受け付けます。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var in ProfileInput

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data の形式が正しくありません",
			})
			return
		}
		defer form.RemoveAll()

		if names := form.Value["name"]; len(names) > 0 {
			in.Name = &names[0]
		}
		if files := form.File["profilePic"]; len(files) > 0 {
			f, err := files[0].Open()
			if err != nil {
				auth.Respond(c, err)
				return
			}
			defer f.Close()
			in.Avatar = f
		}
	} else {
		var req profileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "name を JSON で送ってください",
			})
			return
		}
		in.Name = req.Name
	}

	updated, err := h.svc.UpdateProfile(c.Request.Context(), auth.MustContext(c), in)
	if err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// GetAvatarJob は GET /api/users/profile/avatar-jobs/:id のハンドラーです。
func (h *Handler) GetAvatarJob(c *gin.Context) {
	job, err := h.svc.AvatarJob(c.Request.Context(), auth.MustContext(c), c.Param("id"))
	if err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetUser は GET /api/users/:id のハンドラーです。
func (h *Handler) GetUser(c *gin.Context) {
	profile, err := h.svc.PublicProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// GetUserPosts は GET /api/users/:id/posts のハンドラーです。
func (h *Handler) GetUserPosts(c *gin.Context) {
	items, err := h.svc.PostsOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		auth.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": items})
}
