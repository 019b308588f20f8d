package posts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryPost struct {
	Post
	seq int64
}

type memoryComment struct {
	Comment
	seq int64
}

// MemoryRepository は開発・テスト用のインメモリ実装です。
type MemoryRepository struct {
	mu       sync.RWMutex
	posts    map[string]*memoryPost
	comments map[string]*memoryComment
	seq      int64
	now      func() time.Time
}

// NewMemoryRepository は空の MemoryRepository を作成します。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		posts:    make(map[string]*memoryPost),
		comments: make(map[string]*memoryComment),
		now:      time.Now,
	}
}

func (r *MemoryRepository) CreatePost(ctx context.Context, post *Post) (*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *post
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := r.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.seq++
	r.posts[stored.ID] = &memoryPost{Post: stored, seq: r.seq}

	out := stored
	return &out, nil
}

func (r *MemoryRepository) GetPost(ctx context.Context, id string) (*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := stored.Post
	return &out, nil
}

func (r *MemoryRepository) UpdatePost(ctx context.Context, id string, update PostUpdate) (*Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Title != nil {
		stored.Title = *update.Title
	}
	if update.Content != nil {
		stored.Content = *update.Content
	}
	stored.UpdatedAt = r.now().UTC()

	out := stored.Post
	return &out, nil
}

func (r *MemoryRepository) DeletePost(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[id]; !ok {
		return ErrNotFound
	}
	delete(r.posts, id)
	for cid, c := range r.comments {
		if c.PostID == id {
			delete(r.comments, cid)
		}
	}
	return nil
}

func (r *MemoryRepository) ListPosts(ctx context.Context, query ListQuery) ([]Post, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(query.Search)
	matched := make([]*memoryPost, 0, len(r.posts))
	for _, p := range r.posts {
		if query.OwnerID != "" && p.OwnerID != query.OwnerID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Title), search) &&
			!strings.Contains(strings.ToLower(p.Content), search) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	total := len(matched)
	start := min(max(query.Offset, 0), total)
	end := total
	if query.Limit > 0 {
		end = min(start+query.Limit, total)
	}

	out := make([]Post, 0, end-start)
	for _, p := range matched[start:end] {
		out = append(out, p.Post)
	}
	return out, total, nil
}

func (r *MemoryRepository) CreateComment(ctx context.Context, comment *Comment) (*Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[comment.PostID]; !ok {
		return nil, ErrNotFound
	}
	stored := *comment
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = r.now().UTC()
	r.seq++
	r.comments[stored.ID] = &memoryComment{Comment: stored, seq: r.seq}

	out := stored
	return &out, nil
}

func (r *MemoryRepository) GetComment(ctx context.Context, id string) (*Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.comments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := stored.Comment
	return &out, nil
}

func (r *MemoryRepository) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*memoryComment, 0)
	for _, c := range r.comments {
		if c.PostID == postID {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq > matched[j].seq })

	out := make([]Comment, 0, len(matched))
	for _, c := range matched {
		out = append(out, c.Comment)
	}
	return out, nil
}

func (r *MemoryRepository) DeleteComment(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.comments[id]; !ok {
		return ErrNotFound
	}
	delete(r.comments, id)
	return nil
}
