package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind は認証・認可エラーの分類です。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindInvalidCredentials
	KindMissingCredential
	KindInvalidToken
	KindExpiredToken
	KindUnknownSubject
	KindForbidden
	KindNotFound
)

// Error はクライアントへ返すエラーコードとメッセージを保持します。
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status は Kind に対応する HTTP ステータスを返します。
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindInvalidCredentials, KindMissingCredential, KindInvalidToken, KindExpiredToken, KindUnknownSubject:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError は入力不正のエラーを作成します。
func ValidationError(message string, err error) *Error {
	return &Error{Kind: KindValidation, Code: "INVALID_INPUT", Message: message, Err: err}
}

// ConflictError は重複登録のエラーを作成します。
func ConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Code: "ALREADY_EXISTS", Message: message}
}

// NotFoundError はリソースが存在しないエラーを作成します。
func NotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

// ForbiddenError は所有者以外による変更のエラーを作成します。
func ForbiddenError(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: message}
}

var (
	// ErrInvalidCredentials はメールアドレス不明とパスワード不一致の両方で返します。
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Code: "INVALID_CREDENTIALS", Message: "メールアドレスまたはパスワードが正しくありません"}
	ErrMissingCredential  = &Error{Kind: KindMissingCredential, Code: "UNAUTHORIZED", Message: "ログインが必要です"}
	ErrInvalidToken       = &Error{Kind: KindInvalidToken, Code: "INVALID_TOKEN", Message: "トークンが不正です"}
	ErrExpiredToken       = &Error{Kind: KindExpiredToken, Code: "TOKEN_EXPIRED", Message: "トークンの有効期限が切れました"}
	ErrUnknownSubject     = &Error{Kind: KindUnknownSubject, Code: "UNKNOWN_SUBJECT", Message: "ユーザーが存在しません"}
)

// KindOf は err に含まれる *Error の Kind を返します。*Error でなければ KindInternal です。
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}

// Respond は err を {code, message} の JSON に変換して返します。
func Respond(c *gin.Context, err error) {
	var authErr *Error
	switch {
	case errors.As(err, &authErr) && authErr.Kind != KindInternal:
		c.JSON(authErr.Status(), gin.H{
			"code":    authErr.Code,
			"message": authErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

// Abort は Respond の後にハンドラーチェーンを中断します。
func Abort(c *gin.Context, err error) {
	Respond(c, err)
	c.Abort()
}
