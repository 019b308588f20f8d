package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/inkpost/internal/logging"
)

// ContextKey は Gin コンテキストに *Context を保存するキーです。
const ContextKey = "auth.context"

// RequireAuth は Authorization: Bearer <token> を検証するミドルウェアを返します。
// 公開ルートには付けません。
func RequireAuth(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			Abort(c, err)
			return
		}

		ac, err := v.Authenticate(c.Request.Context(), raw)
		if err != nil {
			Abort(c, err)
			return
		}

		c.Set(ContextKey, ac)
		c.Set(logging.SubjectKey, ac.SubjectID())
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredential
	}
	scheme, token, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingCredential
	}
	return token, nil
}

// FromContext は RequireAuth が保存した *Context を取り出します。
func FromContext(c *gin.Context) (*Context, bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil, false
	}
	ac, ok := v.(*Context)
	return ac, ok && ac != nil
}

// MustContext は RequireAuth の後段でのみ呼び出します。
func MustContext(c *gin.Context) *Context {
	ac, ok := FromContext(c)
	if !ok {
		panic("auth: MustContext called without RequireAuth")
	}
	return ac
}
