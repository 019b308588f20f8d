// Package api は inkpost サーバーの HTTP クライアントです。
//
// 保護 API には session.Store のトークンを Bearer ヘッダーで付けて送り、
// 401 が返った場合はそのリクエストを送った時点の Version で Store を Reject します。
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/inkpost/internal/client/session"
)

var (
	// ErrNotLoggedIn は匿名状態で保護 API を呼ぼうとしたことを表します。
	ErrNotLoggedIn = errors.New("api: not logged in")
	// ErrSessionChanged はログイン応答より先に別の遷移が起きたことを表します。
	ErrSessionChanged = errors.New("api: session changed while logging in")
)

// Error はサーバーが返した {code, message} です。
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus は err が指定ステータスの *Error かどうかを返します。
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client は API クライアントです。
type Client struct {
	baseURL string
	http    *http.Client
	store   *session.Store
}

// New は Client を作成します。httpClient が nil の場合はタイムアウト付きのクライアントを使います。
func New(baseURL string, store *session.Store, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		store:   store,
	}
}

// Store はクライアントが使っているセッションストアを返します。
func (c *Client) Store() *session.Store {
	return c.store
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	protected   bool
}

func jsonRequest(method, path string, payload any, protected bool) (request, error) {
	r := request{method: method, path: path, protected: protected}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return r, err
		}
		r.body = bytes.NewReader(data)
		r.contentType = "application/json"
	}
	return r, nil
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, r.body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	var version uint64
	if r.protected {
		token, v, ok := c.store.Authorization()
		if !ok {
			return ErrNotLoggedIn
		}
		version = v
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeError(resp)
		if r.protected && resp.StatusCode == http.StatusUnauthorized {
			if _, err := c.store.Reject(version); err != nil {
				return errors.Join(apiErr, fmt.Errorf("failed to clear session: %w", err))
			}
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) *Error {
	apiErr := &Error{Status: resp.StatusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

type authResponse struct {
	Identity session.Identity `json:"identity"`
	Token    string           `json:"token"`
}

// Register はユーザー登録し、成功すればそのままログイン状態にします。
func (c *Client) Register(ctx context.Context, name, email, password, confirm string) (*session.Identity, error) {
	return c.authenticate(ctx, "/api/auth/register", map[string]string{
		"name":            name,
		"email":           email,
		"password":        password,
		"confirmPassword": confirm,
	})
}

// Login はログインし、Store を認証済みにします。
func (c *Client) Login(ctx context.Context, email, password string) (*session.Identity, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, payload map[string]string) (*session.Identity, error) {
	_, version, _ := c.store.Authorization()

	r, err := jsonRequest(http.MethodPost, path, payload, false)
	if err != nil {
		return nil, err
	}
	var res authResponse
	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}

	applied, err := c.store.CompareAndLogin(version, res.Identity, res.Token)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrSessionChanged
	}
	return &res.Identity, nil
}

// Logout はローカルのセッションを破棄します。サーバー側の状態はありません。
func (c *Client) Logout() error {
	return c.store.Logout()
}

// Me は現在のトークンの持ち主を返します。
func (c *Client) Me(ctx context.Context) (*session.Identity, error) {
	var res struct {
		Identity session.Identity `json:"identity"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/me", protected: true}, &res); err != nil {
		return nil, err
	}
	return &res.Identity, nil
}

// Author は投稿者の公開情報です。
type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Avatar string `json:"avatar,omitempty"`
}

// Post は投稿です。
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Comment はコメントです。
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostPage は一覧の1ページです。
type PostPage struct {
	Posts       []Post `json:"posts"`
	TotalPages  int    `json:"totalPages"`
	CurrentPage int    `json:"currentPage"`
	TotalPosts  int    `json:"totalPosts"`
}

// PostDetail は投稿とそのコメントです。
type PostDetail struct {
	Post     Post      `json:"post"`
	Comments []Comment `json:"comments"`
}

// Profile はユーザーのプロフィールです。公開プロフィールでは Email は空です。
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	Email     string    `json:"email,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	// CleanupJobID はアバター差し替えで古い画像の削除がキューに積まれたときだけ入ります。
	CleanupJobID string `json:"cleanupJobId,omitempty"`
}

// CleanupJob は古いアバター画像を削除するジョブの状態です。
type CleanupJob struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListPosts は投稿一覧を取得します。page と limit が 0 以下ならサーバーの既定値を使います。
func (c *Client) ListPosts(ctx context.Context, search string, page, limit int) (*PostPage, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var res PostPage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/posts", query: q}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetPost は投稿とコメントを取得します。
func (c *Client) GetPost(ctx context.Context, id string) (*PostDetail, error) {
	var res PostDetail
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/posts/" + url.PathEscape(id)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreatePost は投稿を作成します。
func (c *Client) CreatePost(ctx context.Context, title, content string) (*Post, error) {
	r, err := jsonRequest(http.MethodPost, "/api/posts", map[string]string{"title": title, "content": content}, true)
	if err != nil {
		return nil, err
	}
	var res Post
	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdatePost は投稿を部分更新します。nil の項目は送りません。
func (c *Client) UpdatePost(ctx context.Context, id string, title, content *string) (*Post, error) {
	payload := map[string]string{}
	if title != nil {
		payload["title"] = *title
	}
	if content != nil {
		payload["content"] = *content
	}
	r, err := jsonRequest(http.MethodPut, "/api/posts/"+url.PathEscape(id), payload, true)
	if err != nil {
		return nil, err
	}
	var res Post
	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeletePost は投稿を削除します。
func (c *Client) DeletePost(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/posts/" + url.PathEscape(id), protected: true}, nil)
}

// AddComment は投稿にコメントします。
func (c *Client) AddComment(ctx context.Context, postID, content string) (*Comment, error) {
	r, err := jsonRequest(http.MethodPost, "/api/posts/"+url.PathEscape(postID)+"/comments", map[string]string{"content": content}, true)
	if err != nil {
		return nil, err
	}
	var res Comment
	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteComment はコメントを削除します。
func (c *Client) DeleteComment(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/comments/" + url.PathEscape(id), protected: true}, nil)
}

// Profile は自分のプロフィールを取得します。
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var res Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/users/profile", protected: true}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateProfile は名前とアバター画像を更新します。avatar が nil なら JSON で名前だけ送ります。
func (c *Client) UpdateProfile(ctx context.Context, name *string, filename string, avatar io.Reader) (*Profile, error) {
	var (
		r   request
		err error
	)
	if avatar == nil {
		payload := map[string]string{}
		if name != nil {
			payload["name"] = *name
		}
		r, err = jsonRequest(http.MethodPut, "/api/users/profile", payload, true)
	} else {
		r, err = multipartProfile(name, filename, avatar)
	}
	if err != nil {
		return nil, err
	}

	var res Profile
	if err := c.do(ctx, r, &res); err != nil {
		return nil, err
	}
	c.refreshIdentity(res)
	return &res, nil
}

func multipartProfile(name *string, filename string, avatar io.Reader) (request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if name != nil {
		if err := w.WriteField("name", *name); err != nil {
			return request{}, err
		}
	}
	part, err := w.CreateFormFile("profilePic", filename)
	if err != nil {
		return request{}, err
	}
	if _, err := io.Copy(part, avatar); err != nil {
		return request{}, err
	}
	if err := w.Close(); err != nil {
		return request{}, err
	}
	return request{
		method:      http.MethodPut,
		path:        "/api/users/profile",
		body:        &buf,
		contentType: w.FormDataContentType(),
		protected:   true,
	}, nil
}

// refreshIdentity はプロフィール更新後の表示名とアバターを Store に反映します。
func (c *Client) refreshIdentity(p Profile) {
	token, version, ok := c.store.Authorization()
	if !ok {
		return
	}
	snap := c.store.Snapshot()
	if snap.Identity == nil || snap.Identity.ID != p.ID {
		return
	}
	updated := *snap.Identity
	updated.Name = p.Name
	updated.Avatar = p.Avatar
	_, _ = c.store.CompareAndLogin(version, updated, token)
}

// AvatarJob は自分のアバター削除ジョブの状態を取得します。
func (c *Client) AvatarJob(ctx context.Context, jobID string) (*CleanupJob, error) {
	var res CleanupJob
	path := "/api/users/profile/avatar-jobs/" + url.PathEscape(jobID)
	if err := c.do(ctx, request{method: http.MethodGet, path: path, protected: true}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// User は公開プロフィールを取得します。
func (c *Client) User(ctx context.Context, id string) (*Profile, error) {
	var res Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/users/" + url.PathEscape(id)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UserPosts はユーザーの投稿一覧を取得します。
func (c *Client) UserPosts(ctx context.Context, id string) ([]Post, error) {
	var res struct {
		Posts []Post `json:"posts"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/users/" + url.PathEscape(id) + "/posts"}, &res); err != nil {
		return nil, err
	}
	return res.Posts, nil
}
