package posts

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/inkpost/internal/auth"
	"github.com/yourusername/inkpost/internal/identity"
)

type serviceFixture struct {
	svc   *Service
	repo  *MemoryRepository
	alice *auth.Context
	bob   *auth.Context
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	identities := identity.NewMemoryRepository()

	mk := func(name string) *auth.Context {
		created, err := identities.Create(ctx, &identity.Identity{
			Name: name, Handle: strings.ToLower(name), Email: strings.ToLower(name) + "@example.com",
		})
		require.NoError(t, err)
		return &auth.Context{Identity: created}
	}

	repo := NewMemoryRepository()
	return &serviceFixture{
		svc:   NewService(repo, identities, 6, nil),
		repo:  repo,
		alice: mk("Alice"),
		bob:   mk("Bob"),
	}
}

func strPtr(s string) *string { return &s }

func TestCreateAndGetPopulatesAuthors(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	post, err := f.svc.Create(ctx, f.alice, CreatePostInput{Title: "  Hello  ", Content: "world"})
	require.NoError(t, err)
	require.Equal(t, "Hello", post.Title)
	require.Equal(t, "alice", post.Author.Handle)

	_, err = f.svc.AddComment(ctx, f.bob, post.ID, CommentInput{Content: "first"})
	require.NoError(t, err)
	_, err = f.svc.AddComment(ctx, f.alice, post.ID, CommentInput{Content: "second"})
	require.NoError(t, err)

	got, comments, err := f.svc.Get(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", got.Author.Name)
	require.Len(t, comments, 2)
	require.Equal(t, "second", comments[0].Content)
	require.Equal(t, "Bob", comments[1].Author.Name)
}

func TestCreateValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Create(context.Background(), f.alice, CreatePostInput{Title: "Hi", Content: "body"})
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	_, err = f.svc.Create(context.Background(), f.alice, CreatePostInput{Title: "Valid title"})
	require.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestMutationPrecedence(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	post, err := f.svc.Create(ctx, f.alice, CreatePostInput{Title: "Alice post", Content: "body"})
	require.NoError(t, err)

	// 存在しない投稿は入力が不正でも 404
	_, err = f.svc.Update(ctx, f.bob, "missing", UpdatePostInput{Title: strPtr("x")})
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))

	// 他人の投稿は入力が不正でも 403
	_, err = f.svc.Update(ctx, f.bob, post.ID, UpdatePostInput{Title: strPtr("x")})
	require.Equal(t, auth.KindForbidden, auth.KindOf(err))

	// 所有者なら入力検証の結果が返る
	_, err = f.svc.Update(ctx, f.alice, post.ID, UpdatePostInput{Title: strPtr("x")})
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	updated, err := f.svc.Update(ctx, f.alice, post.ID, UpdatePostInput{Content: strPtr("new body")})
	require.NoError(t, err)
	require.Equal(t, "Alice post", updated.Title)
	require.Equal(t, "new body", updated.Content)
}

func TestDeleteOwnershipThenNotFound(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	post, err := f.svc.Create(ctx, f.alice, CreatePostInput{Title: "Alice post", Content: "body"})
	require.NoError(t, err)
	comment, err := f.svc.AddComment(ctx, f.bob, post.ID, CommentInput{Content: "nice"})
	require.NoError(t, err)

	require.Equal(t, auth.KindForbidden, auth.KindOf(f.svc.Delete(ctx, f.bob, post.ID)))
	require.NoError(t, f.svc.Delete(ctx, f.alice, post.ID))
	require.Equal(t, auth.KindNotFound, auth.KindOf(f.svc.Delete(ctx, f.alice, post.ID)))

	_, err = f.repo.GetComment(ctx, comment.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCommentOwnership(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	post, err := f.svc.Create(ctx, f.alice, CreatePostInput{Title: "Alice post", Content: "body"})
	require.NoError(t, err)
	comment, err := f.svc.AddComment(ctx, f.bob, post.ID, CommentInput{Content: "nice"})
	require.NoError(t, err)

	// 投稿者であってもコメントの所有者でなければ削除できない
	require.Equal(t, auth.KindForbidden, auth.KindOf(f.svc.DeleteComment(ctx, f.alice, comment.ID)))
	require.NoError(t, f.svc.DeleteComment(ctx, f.bob, comment.ID))
	require.Equal(t, auth.KindNotFound, auth.KindOf(f.svc.DeleteComment(ctx, f.bob, comment.ID)))
}

func TestAddCommentToMissingPost(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.AddComment(context.Background(), f.bob, "missing", CommentInput{})
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))
}

func TestListPaginationAndSearch(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	for i := 1; i <= 8; i++ {
		title := fmt.Sprintf("Post number %d", i)
		if i%2 == 0 {
			title = fmt.Sprintf("Golang tips %d", i)
		}
		_, err := f.svc.Create(ctx, f.alice, CreatePostInput{Title: title, Content: "body"})
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, ListParams{})
	require.NoError(t, err)
	require.Len(t, first.Posts, 6)
	require.Equal(t, 8, first.TotalPosts)
	require.Equal(t, 2, first.TotalPages)
	require.Equal(t, 1, first.CurrentPage)
	require.Equal(t, "Golang tips 8", first.Posts[0].Title)

	second, err := f.svc.List(ctx, ListParams{Page: 2})
	require.NoError(t, err)
	require.Len(t, second.Posts, 2)

	search, err := f.svc.List(ctx, ListParams{Search: "GOLANG", Limit: 100})
	require.NoError(t, err)
	require.Equal(t, 4, search.TotalPosts)
	require.Equal(t, 1, search.TotalPages)

	huge, err := f.svc.List(ctx, ListParams{Page: math.MaxInt, Limit: 2})
	require.NoError(t, err)
	require.Empty(t, huge.Posts)
	require.Equal(t, math.MaxInt32/2, huge.CurrentPage)
	require.Equal(t, 4, huge.TotalPages)

	mine, err := f.svc.ListByOwner(ctx, f.bob.SubjectID())
	require.NoError(t, err)
	require.Empty(t, mine)
}
