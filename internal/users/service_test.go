package users

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/inkpost/internal/auth"
	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/posts"
	"github.com/yourusername/inkpost/internal/storage"
)

type fakeAvatars struct {
	next    string
	saveErr error
	deleted []string
}

func (f *fakeAvatars) SaveAvatar(r io.Reader) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	_, _ = io.Copy(io.Discard, r)
	return f.next, nil
}

func (f *fakeAvatars) Delete(path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

type fakeCleaner struct {
	scheduled []string
	owners    []string
	err       error
}

func (f *fakeCleaner) ScheduleAvatarDelete(ctx context.Context, ownerID, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.scheduled = append(f.scheduled, path)
	f.owners = append(f.owners, ownerID)
	return "job-1", nil
}

func (f *fakeCleaner) AvatarJob(ctx context.Context, jobID string) (*CleanupJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	if jobID != "job-1" || len(f.owners) == 0 {
		return nil, ErrJobNotFound
	}
	return &CleanupJob{ID: jobID, OwnerID: f.owners[0], Status: "queued"}, nil
}

func newFixture(t *testing.T, cleaner AvatarCleaner) (*Service, *fakeAvatars, *auth.Context, *posts.Service) {
	t.Helper()
	identities := identity.NewMemoryRepository()
	created, err := identities.Create(context.Background(), &identity.Identity{
		Name: "Alice", Handle: "alice", Email: "alice@example.com", Avatar: "/uploads/old.png",
	})
	require.NoError(t, err)

	postsSvc := posts.NewService(posts.NewMemoryRepository(), identities, 6, nil)
	avatars := &fakeAvatars{next: "/uploads/new.png"}
	svc := NewService(identities, postsSvc, avatars, Options{Cleaner: cleaner})
	return svc, avatars, &auth.Context{Identity: created}, postsSvc
}

func strPtr(s string) *string { return &s }

func TestUpdateProfileNameOnly(t *testing.T) {
	svc, avatars, ac, _ := newFixture(t, nil)

	updated, err := svc.UpdateProfile(context.Background(), ac, ProfileInput{Name: strPtr("  Alicia ")})
	require.NoError(t, err)
	require.Equal(t, "Alicia", updated.Name)
	require.Equal(t, "/uploads/old.png", updated.Avatar)
	require.Empty(t, avatars.deleted)
}

func TestUpdateProfileAvatarSchedulesCleanup(t *testing.T) {
	cleaner := &fakeCleaner{}
	svc, avatars, ac, _ := newFixture(t, cleaner)

	updated, err := svc.UpdateProfile(context.Background(), ac, ProfileInput{Avatar: strings.NewReader("png")})
	require.NoError(t, err)
	require.Equal(t, "/uploads/new.png", updated.Avatar)
	require.Equal(t, "job-1", updated.CleanupJobID)
	require.Equal(t, []string{"/uploads/old.png"}, cleaner.scheduled)
	require.Equal(t, []string{ac.SubjectID()}, cleaner.owners)
	require.Empty(t, avatars.deleted)
}

func TestAvatarJobIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	cleaner := &fakeCleaner{}
	svc, _, ac, _ := newFixture(t, cleaner)

	_, err := svc.AvatarJob(ctx, ac, "job-1")
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))

	_, err = svc.UpdateProfile(ctx, ac, ProfileInput{Avatar: strings.NewReader("png")})
	require.NoError(t, err)

	job, err := svc.AvatarJob(ctx, ac, "job-1")
	require.NoError(t, err)
	require.Equal(t, "queued", job.Status)

	other := &auth.Context{Identity: &identity.Identity{ID: "someone-else"}}
	_, err = svc.AvatarJob(ctx, other, "job-1")
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))

	cleaner.err = errors.New("redis down")
	_, err = svc.AvatarJob(ctx, ac, "job-1")
	require.Error(t, err)
	require.Equal(t, auth.KindInternal, auth.KindOf(err))
}

func TestAvatarJobWithoutQueue(t *testing.T) {
	svc, _, ac, _ := newFixture(t, nil)

	updated, err := svc.UpdateProfile(context.Background(), ac, ProfileInput{Avatar: strings.NewReader("png")})
	require.NoError(t, err)
	require.Empty(t, updated.CleanupJobID)

	_, err = svc.AvatarJob(context.Background(), ac, "job-1")
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))
}

func TestUpdateProfileAvatarInlineCleanup(t *testing.T) {
	svc, avatars, ac, _ := newFixture(t, nil)

	_, err := svc.UpdateProfile(context.Background(), ac, ProfileInput{Avatar: strings.NewReader("png")})
	require.NoError(t, err)
	require.Equal(t, []string{"/uploads/old.png"}, avatars.deleted)
}

func TestUpdateProfileFallsBackWhenQueueFails(t *testing.T) {
	svc, avatars, ac, _ := newFixture(t, &fakeCleaner{err: errors.New("redis down")})

	_, err := svc.UpdateProfile(context.Background(), ac, ProfileInput{Avatar: strings.NewReader("png")})
	require.NoError(t, err)
	require.Equal(t, []string{"/uploads/old.png"}, avatars.deleted)
}

func TestUpdateProfileValidation(t *testing.T) {
	svc, avatars, ac, _ := newFixture(t, nil)

	_, err := svc.UpdateProfile(context.Background(), ac, ProfileInput{})
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	_, err = svc.UpdateProfile(context.Background(), ac, ProfileInput{Name: strPtr("Al")})
	require.Equal(t, auth.KindValidation, auth.KindOf(err))

	avatars.saveErr = storage.ErrUnsupportedType
	_, err = svc.UpdateProfile(context.Background(), ac, ProfileInput{Avatar: strings.NewReader("exe")})
	require.Equal(t, auth.KindValidation, auth.KindOf(err))
}

func TestPublicProfileAndPosts(t *testing.T) {
	ctx := context.Background()
	svc, _, ac, postsSvc := newFixture(t, nil)

	_, err := postsSvc.Create(ctx, ac, posts.CreatePostInput{Title: "First post", Content: "body"})
	require.NoError(t, err)

	public, err := svc.PublicProfile(ctx, ac.SubjectID())
	require.NoError(t, err)
	require.Equal(t, "alice", public.Handle)

	items, err := svc.PostsOf(ctx, ac.SubjectID())
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = svc.PostsOf(ctx, "missing")
	require.Equal(t, auth.KindNotFound, auth.KindOf(err))
}
