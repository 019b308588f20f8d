// Package posts は投稿とコメントの保存・取得・変更を提供します。
package posts

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound は投稿またはコメントが存在しないことを表します。
var ErrNotFound = errors.New("post not found")

// Author は投稿者の公開情報です。
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Avatar string `json:"avatar,omitempty"`
}

// Post はブログ投稿です。
type Post struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Owner は投稿者の ID を返します。
func (p *Post) Owner() string { return p.OwnerID }

// Comment は投稿へのコメントです。
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	OwnerID   string    `json:"-"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// Owner はコメント投稿者の ID を返します。
func (c *Comment) Owner() string { return c.OwnerID }

// PostUpdate は投稿の部分更新です。nil の項目は変更しません。
type PostUpdate struct {
	Title   *string
	Content *string
}

// ListQuery は一覧取得の条件です。Search はタイトル・本文の大文字小文字を区別しない部分一致です。
type ListQuery struct {
	Search  string
	OwnerID string
	Offset  int
	Limit   int
}

// Repository は投稿とコメントの保存先です。
//
// 一覧は作成日時の新しい順に返します。DeletePost は紐づくコメントも削除します。
type Repository interface {
	CreatePost(ctx context.Context, post *Post) (*Post, error)
	GetPost(ctx context.Context, id string) (*Post, error)
	UpdatePost(ctx context.Context, id string, update PostUpdate) (*Post, error)
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, query ListQuery) ([]Post, int, error)

	CreateComment(ctx context.Context, comment *Comment) (*Comment, error)
	GetComment(ctx context.Context, id string) (*Comment, error)
	ListComments(ctx context.Context, postID string) ([]Comment, error)
	DeleteComment(ctx context.Context, id string) error
}
