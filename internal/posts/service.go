package posts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/auth"
	"github.com/yourusername/inkpost/internal/identity"
)

const maxPageSize = 50

// CreatePostInput は投稿作成の入力です。
type CreatePostInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate は入力形式を検証します。
func (in CreatePostInput) Validate() error {
	return validation.Errors{
		"title":   validation.Validate(in.Title, validation.Required, validation.RuneLength(3, 200)),
		"content": validation.Validate(in.Content, validation.Required),
	}.Filter()
}

// UpdatePostInput は投稿の部分更新の入力です。
type UpdatePostInput struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Validate は送られた項目だけを検証します。
func (in UpdatePostInput) Validate() error {
	errs := validation.Errors{}
	if in.Title != nil {
		errs["title"] = validation.Validate(*in.Title, validation.Required, validation.RuneLength(3, 200))
	}
	if in.Content != nil {
		errs["content"] = validation.Validate(*in.Content, validation.Required)
	}
	if in.Title == nil && in.Content == nil {
		errs["title"] = errors.New("title または content を指定してください")
	}
	return errs.Filter()
}

// CommentInput はコメント作成の入力です。
type CommentInput struct {
	Content string `json:"content"`
}

// Validate は入力形式を検証します。
func (in CommentInput) Validate() error {
	return validation.Errors{
		"content": validation.Validate(in.Content, validation.Required, validation.RuneLength(1, 1000)),
	}.Filter()
}

// ListParams は一覧取得のページ指定です。
type ListParams struct {
	Search string
	Page   int
	Limit  int
}

// Page は一覧取得の結果です。
type Page struct {
	Posts       []Post `json:"posts"`
	TotalPages  int    `json:"totalPages"`
	CurrentPage int    `json:"currentPage"`
	TotalPosts  int    `json:"totalPosts"`
}

// Service は投稿・コメントの操作をまとめます。
//
// 変更系の判定順は 存在確認(404) → 所有者確認(403) → 入力検証(400) です。
// 認証(401) はハンドラーより前段のミドルウェアで済んでいます。
type Service struct {
	repo        Repository
	identities  identity.Repository
	defaultSize int
	logger      *zap.Logger
}

// NewService は Service を作成します。
func NewService(repo Repository, identities identity.Repository, defaultSize int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultSize <= 0 {
		defaultSize = 6
	}
	return &Service{repo: repo, identities: identities, defaultSize: defaultSize, logger: logger}
}

// List は投稿を新しい順にページ単位で返します。
func (s *Service) List(ctx context.Context, params ListParams) (*Page, error) {
	page := max(params.Page, 1)
	limit := params.Limit
	if limit <= 0 {
		limit = s.defaultSize
	}
	limit = min(limit, maxPageSize)
	// オフセットが int32 に収まるようにページ番号を丸める
	page = min(page, math.MaxInt32/limit)

	items, total, err := s.repo.ListPosts(ctx, ListQuery{
		Search: strings.TrimSpace(params.Search),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	if err := s.populatePosts(ctx, items); err != nil {
		return nil, err
	}

	return &Page{
		Posts:       items,
		TotalPages:  (total + limit - 1) / limit,
		CurrentPage: page,
		TotalPosts:  total,
	}, nil
}

// ListByOwner はユーザーの投稿を新しい順にすべて返します。
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Post, error) {
	items, _, err := s.repo.ListPosts(ctx, ListQuery{OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	if err := s.populatePosts(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get は投稿とコメント（新しい順）を返します。
func (s *Service) Get(ctx context.Context, id string) (*Post, []Comment, error) {
	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	comments, err := s.repo.ListComments(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list comments: %w", err)
	}

	authors := newAuthorLookup(s.identities)
	if post.Author, err = authors.get(ctx, post.OwnerID); err != nil {
		return nil, nil, err
	}
	for i := range comments {
		if comments[i].Author, err = authors.get(ctx, comments[i].OwnerID); err != nil {
			return nil, nil, err
		}
	}
	return post, comments, nil
}

// Create は認証済みユーザーを所有者として投稿を作成します。
func (s *Service) Create(ctx context.Context, ac *auth.Context, in CreatePostInput) (*Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return nil, auth.ValidationError(err.Error(), err)
	}

	post, err := s.repo.CreatePost(ctx, &Post{OwnerID: ac.SubjectID(), Title: in.Title, Content: in.Content})
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	post.Author = authorFrom(ac.Identity)
	s.logger.Info("post created", zap.String("post", post.ID), zap.String("subject", ac.SubjectID()))
	return post, nil
}

// Update は所有者のみが投稿を部分更新できます。
func (s *Service) Update(ctx context.Context, ac *auth.Context, id string, in UpdatePostInput) (*Post, error) {
	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.AuthorizeMutation(ac, post); err != nil {
		return nil, err
	}
	if in.Title != nil {
		trimmed := strings.TrimSpace(*in.Title)
		in.Title = &trimmed
	}
	if err := in.Validate(); err != nil {
		return nil, auth.ValidationError(err.Error(), err)
	}

	updated, err := s.repo.UpdatePost(ctx, id, PostUpdate{Title: in.Title, Content: in.Content})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.NotFoundError("投稿が見つかりません")
		}
		return nil, fmt.Errorf("failed to update post: %w", err)
	}
	updated.Author = authorFrom(ac.Identity)
	return updated, nil
}

// Delete は所有者のみが投稿（とコメント）を削除できます。
func (s *Service) Delete(ctx context.Context, ac *auth.Context, id string) error {
	post, err := s.findPost(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.AuthorizeMutation(ac, post); err != nil {
		return err
	}
	if err := s.repo.DeletePost(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.NotFoundError("投稿が見つかりません")
		}
		return fmt.Errorf("failed to delete post: %w", err)
	}
	s.logger.Info("post deleted", zap.String("post", id), zap.String("subject", ac.SubjectID()))
	return nil
}

// AddComment は投稿にコメントを追加します。
func (s *Service) AddComment(ctx context.Context, ac *auth.Context, postID string, in CommentInput) (*Comment, error) {
	if _, err := s.findPost(ctx, postID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, auth.ValidationError(err.Error(), err)
	}

	comment, err := s.repo.CreateComment(ctx, &Comment{PostID: postID, OwnerID: ac.SubjectID(), Content: in.Content})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.NotFoundError("投稿が見つかりません")
		}
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	comment.Author = authorFrom(ac.Identity)
	return comment, nil
}

// DeleteComment は所有者のみがコメントを削除できます。
func (s *Service) DeleteComment(ctx context.Context, ac *auth.Context, id string) error {
	comment, err := s.repo.GetComment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.NotFoundError("コメントが見つかりません")
		}
		return fmt.Errorf("failed to get comment: %w", err)
	}
	if err := auth.AuthorizeMutation(ac, comment); err != nil {
		return err
	}
	if err := s.repo.DeleteComment(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.NotFoundError("コメントが見つかりません")
		}
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	return nil
}

func (s *Service) findPost(ctx context.Context, id string) (*Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.NotFoundError("投稿が見つかりません")
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

func (s *Service) populatePosts(ctx context.Context, items []Post) error {
	authors := newAuthorLookup(s.identities)
	for i := range items {
		author, err := authors.get(ctx, items[i].OwnerID)
		if err != nil {
			return err
		}
		items[i].Author = author
	}
	return nil
}

// authorLookup は1回の応答の中で同じ投稿者を何度も引かないようにします。
type authorLookup struct {
	repo  identity.Repository
	cache map[string]Author
}

func newAuthorLookup(repo identity.Repository) *authorLookup {
	return &authorLookup{repo: repo, cache: make(map[string]Author)}
}

func (l *authorLookup) get(ctx context.Context, id string) (Author, error) {
	if a, ok := l.cache[id]; ok {
		return a, nil
	}
	found, err := l.repo.FindByID(ctx, id)
	switch {
	case err == nil:
		l.cache[id] = authorFrom(found)
	case errors.Is(err, identity.ErrNotFound):
		l.cache[id] = Author{ID: id}
	default:
		return Author{}, fmt.Errorf("failed to resolve author: %w", err)
	}
	return l.cache[id], nil
}

func authorFrom(i *identity.Identity) Author {
	return Author{ID: i.ID, Name: i.Name, Handle: i.Handle, Avatar: i.Avatar}
}
