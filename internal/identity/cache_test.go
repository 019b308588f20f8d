package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	Repository
	findByID int
}

func (r *countingRepo) FindByID(ctx context.Context, id string) (*Identity, error) {
	r.findByID++
	return r.Repository.FindByID(ctx, id)
}

func newCachedRepo(t *testing.T) (*CachedRepository, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	inner := &countingRepo{Repository: NewMemoryRepository()}
	return NewCachedRepository(inner, client, time.Minute, nil), inner, mr
}

func TestCachedFindByIDHitsCache(t *testing.T) {
	ctx := context.Background()
	repo, inner, mr := newCachedRepo(t)

	created, err := repo.Create(ctx, &Identity{Name: "Alice", Handle: "alice", Email: "alice@example.com", PasswordHash: "secret-hash"})
	require.NoError(t, err)

	first, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)

	require.Equal(t, 1, inner.findByID)
	require.Equal(t, first.Name, second.Name)
	require.Empty(t, second.PasswordHash)
	require.True(t, mr.Exists(cacheKeyPrefix+created.ID))
	require.Equal(t, time.Minute, mr.TTL(cacheKeyPrefix+created.ID))
}

func TestCachedUpdateProfileInvalidates(t *testing.T) {
	ctx := context.Background()
	repo, inner, mr := newCachedRepo(t)

	created, err := repo.Create(ctx, &Identity{Name: "Alice", Handle: "alice", Email: "alice@example.com"})
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, created.ID)
	require.NoError(t, err)

	name := "Alicia"
	_, err = repo.UpdateProfile(ctx, created.ID, ProfileUpdate{Name: &name})
	require.NoError(t, err)
	require.False(t, mr.Exists(cacheKeyPrefix+created.ID))

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Alicia", got.Name)
	require.Equal(t, 2, inner.findByID)
}

func TestCachedFindByIDFallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	repo, inner, mr := newCachedRepo(t)

	created, err := repo.Create(ctx, &Identity{Name: "Alice", Handle: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	mr.Close()

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, 1, inner.findByID)
}

func TestCachedFindByIDDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	repo, _, mr := newCachedRepo(t)

	_, err := repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, mr.Exists(cacheKeyPrefix+"missing"))
}
