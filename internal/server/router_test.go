package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/inkpost/internal/config"
	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/posts"
	"github.com/yourusername/inkpost/internal/storage"
	"github.com/yourusername/inkpost/internal/users"
)

// 1x1 の透過 PNG
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:     "router-test-secret-with-enough-bytes",
		TokenTTL:      time.Hour,
		BcryptCost:    bcrypt.MinCost,
		GinMode:       gin.TestMode,
		MaxAvatarSize: 1024,
		PostsPageSize: 6,
	}
}

type apiFixture struct {
	t      *testing.T
	router *gin.Engine
	upload string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithCleaner(t, nil)
}

func newAPIFixtureWithCleaner(t *testing.T, cleaner users.AvatarCleaner) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upload := filepath.Join(t.TempDir(), "uploads")
	avatars, err := storage.NewLocalStorage(upload, 1024)
	require.NoError(t, err)

	router, err := New(Deps{
		Config:     testConfig(),
		Identities: identity.NewMemoryRepository(),
		Posts:      posts.NewMemoryRepository(),
		Avatars:    avatars,
		Cleaner:    cleaner,
	})
	require.NoError(t, err)
	return &apiFixture{t: t, router: router, upload: upload}
}

func (f *apiFixture) request(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) register(name, email string) (token, id string) {
	f.t.Helper()
	rec := f.request(http.MethodPost, "/api/auth/register", "", gin.H{
		"name": name, "email": email, "password": "password123", "confirmPassword": "password123",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Token    string `json:"token"`
		Identity struct {
			ID string `json:"id"`
		} `json:"identity"`
	}
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Token, body.Identity.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestOwnershipDeleteFlow(t *testing.T) {
	f := newAPIFixture(t)
	tokenA, _ := f.register("Alice", "alice@example.com")
	tokenB, _ := f.register("Bob", "bob@example.com")

	rec := f.request(http.MethodPost, "/api/posts", tokenA, gin.H{"title": "Alice's post", "content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[struct {
		ID     string `json:"id"`
		Author struct {
			Handle string `json:"handle"`
		} `json:"author"`
	}](t, rec)
	require.Equal(t, "alice", post.Author.Handle)

	rec = f.request(http.MethodDelete, "/api/posts/"+post.ID, tokenB, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "FORBIDDEN", decode[map[string]string](t, rec)["code"])

	rec = f.request(http.MethodDelete, "/api/posts/"+post.ID, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(http.MethodDelete, "/api/posts/"+post.ID, tokenA, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", decode[map[string]string](t, rec)["code"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newAPIFixture(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/posts"},
		{http.MethodPut, "/api/posts/any"},
		{http.MethodDelete, "/api/posts/any"},
		{http.MethodPost, "/api/posts/any/comments"},
		{http.MethodDelete, "/api/comments/any"},
		{http.MethodGet, "/api/users/profile"},
		{http.MethodPut, "/api/users/profile"},
		{http.MethodGet, "/api/users/profile/avatar-jobs/any"},
		{http.MethodGet, "/api/auth/me"},
	} {
		rec := f.request(tc.method, tc.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
		require.Equal(t, "UNAUTHORIZED", decode[map[string]string](t, rec)["code"])
	}
}

func TestUpdatePrecedence(t *testing.T) {
	f := newAPIFixture(t)
	tokenA, _ := f.register("Alice", "alice@example.com")
	tokenB, _ := f.register("Bob", "bob@example.com")

	rec := f.request(http.MethodPost, "/api/posts", tokenA, gin.H{"title": "Alice's post", "content": "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[map[string]any](t, rec)["id"].(string)

	// 不正な入力でも 他人 → 403
	rec = f.request(http.MethodPut, "/api/posts/"+id, tokenB, gin.H{"title": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	// 不正な入力でも 存在しない → 404
	rec = f.request(http.MethodPut, "/api/posts/missing", tokenA, gin.H{"title": "x"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(http.MethodPut, "/api/posts/"+id, tokenA, gin.H{"title": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(http.MethodPut, "/api/posts/"+id, tokenA, gin.H{"title": "Renamed post"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Renamed post", decode[map[string]any](t, rec)["title"])
}

func TestCommentsFlow(t *testing.T) {
	f := newAPIFixture(t)
	tokenA, _ := f.register("Alice", "alice@example.com")
	tokenB, _ := f.register("Bob", "bob@example.com")

	rec := f.request(http.MethodPost, "/api/posts", tokenA, gin.H{"title": "Alice's post", "content": "hello"})
	id := decode[map[string]any](t, rec)["id"].(string)

	rec = f.request(http.MethodPost, "/api/posts/"+id+"/comments", tokenB, gin.H{"content": "nice post"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	commentID := decode[map[string]any](t, rec)["id"].(string)

	rec = f.request(http.MethodGet, "/api/posts/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct {
		Comments []struct {
			Content string `json:"content"`
			Author  struct {
				Name string `json:"name"`
			} `json:"author"`
		} `json:"comments"`
	}](t, rec)
	require.Len(t, detail.Comments, 1)
	require.Equal(t, "Bob", detail.Comments[0].Author.Name)

	rec = f.request(http.MethodDelete, "/api/comments/"+commentID, tokenA, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.request(http.MethodDelete, "/api/comments/"+commentID, tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListAndPublicProfile(t *testing.T) {
	f := newAPIFixture(t)
	tokenA, idA := f.register("Alice", "alice@example.com")

	for _, title := range []string{"First post", "Second post", "Third thing"} {
		rec := f.request(http.MethodPost, "/api/posts", tokenA, gin.H{"title": title, "content": "body"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.request(http.MethodGet, "/api/posts?search=post&limit=1&page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[posts.Page](t, rec)
	require.Equal(t, 2, page.TotalPosts)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 2, page.CurrentPage)
	require.Len(t, page.Posts, 1)
	require.Equal(t, "First post", page.Posts[0].Title)

	rec = f.request(http.MethodGet, "/api/users/"+idA, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "alice@example.com")

	rec = f.request(http.MethodGet, "/api/users/"+idA+"/posts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[struct {
		Posts []posts.Post `json:"posts"`
	}](t, rec).Posts, 3)

	rec = f.request(http.MethodGet, "/api/users/missing", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileAvatarUpload(t *testing.T) {
	f := newAPIFixture(t)
	token, _ := f.register("Alice", "alice@example.com")

	upload := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("name", "Alice Liddell"))
		part, err := w.CreateFormFile("profilePic", "avatar.png")
		require.NoError(t, err)
		_, err = part.Write(tinyPNG)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPut, "/api/users/profile", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec
	}

	rec := upload()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[map[string]any](t, rec)
	require.Equal(t, "Alice Liddell", first["name"])
	avatar := first["avatar"].(string)
	require.True(t, strings.HasPrefix(avatar, storage.PublicPrefix))

	rec = f.request(http.MethodGet, avatar, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// 差し替えると古い画像は同期削除される（キュー未設定）
	rec = upload()
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(filepath.Join(f.upload, filepath.Base(avatar)))
	require.True(t, os.IsNotExist(err))

	rec = f.request(http.MethodGet, "/api/users/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEqual(t, avatar, decode[map[string]any](t, rec)["avatar"])
}

// queueCleaner はジョブを記録するだけで画像は消しません。
type queueCleaner struct {
	jobs map[string]*users.CleanupJob
}

func (q *queueCleaner) ScheduleAvatarDelete(ctx context.Context, ownerID, path string) (string, error) {
	id := fmt.Sprintf("job-%d", len(q.jobs)+1)
	q.jobs[id] = &users.CleanupJob{ID: id, OwnerID: ownerID, Status: "queued", UpdatedAt: time.Now()}
	return id, nil
}

func (q *queueCleaner) AvatarJob(ctx context.Context, jobID string) (*users.CleanupJob, error) {
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, users.ErrJobNotFound
	}
	return job, nil
}

func TestAvatarJobStatus(t *testing.T) {
	f := newAPIFixtureWithCleaner(t, &queueCleaner{jobs: map[string]*users.CleanupJob{}})
	token, _ := f.register("Alice", "alice@example.com")
	otherToken, _ := f.register("Bob", "bob@example.com")

	upload := func() map[string]any {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("profilePic", "avatar.png")
		require.NoError(t, err)
		_, err = part.Write(tinyPNG)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPut, "/api/users/profile", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[map[string]any](t, rec)
	}

	first := upload()
	require.NotContains(t, first, "cleanupJobId")

	second := upload()
	jobID, _ := second["cleanupJobId"].(string)
	require.Equal(t, "job-1", jobID)

	rec := f.request(http.MethodGet, "/api/users/profile/avatar-jobs/"+jobID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	job := decode[map[string]any](t, rec)
	require.Equal(t, "queued", job["status"])
	require.NotContains(t, job, "ownerId")

	rec = f.request(http.MethodGet, "/api/users/profile/avatar-jobs/"+jobID, otherToken, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(http.MethodGet, "/api/users/profile/avatar-jobs/missing", token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.request(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	f.request(http.MethodPost, "/api/auth/login", "", gin.H{"email": "ghost@example.com", "password": "whatever1"})

	rec = f.request(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `inkpost_auth_events_total{event="login",outcome="invalid_credentials"} 1`)
	require.Contains(t, rec.Body.String(), `route="/api/auth/login"`)
}
