// Package identity はユーザー識別情報（Identity）の永続化を提供します。
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound は該当する Identity が存在しないことを表します。
	ErrNotFound = errors.New("identity not found")
	// ErrConflict は email または handle が既に使われていることを表します。
	ErrConflict = errors.New("identity already exists")
)

// Identity は登録ユーザーの識別情報です。
// PasswordHash は JSON に出力されません。
type Identity struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Handle       string    `json:"handle"`
	Email        string    `json:"email"`
	Avatar       string    `json:"avatar,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Public はメールアドレスを除いた公開プロフィールです。
type Public struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public は公開プロフィールに変換します。
func (i *Identity) Public() Public {
	return Public{
		ID:        i.ID,
		Name:      i.Name,
		Handle:    i.Handle,
		Avatar:    i.Avatar,
		CreatedAt: i.CreatedAt,
	}
}

// ProfileUpdate はプロフィール更新で変更できる項目です。nil の項目は変更しません。
type ProfileUpdate struct {
	Name   *string
	Avatar *string
}

// Repository は Identity の保存先です。
//
// Create は email / handle の一意性をストア側で保証し、重複時は ErrConflict を返します。
// 見つからない場合の取得系は ErrNotFound を返します。
type Repository interface {
	Create(ctx context.Context, identity *Identity) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Identity, error)
}
