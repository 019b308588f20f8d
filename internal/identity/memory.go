package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository は開発・テスト用のインメモリ実装です。
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[string]*Identity
	byEmail  map[string]string
	byHandle map[string]string
	now      func() time.Time
}

// NewMemoryRepository は空の MemoryRepository を作成します。
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[string]*Identity),
		byEmail:  make(map[string]string),
		byHandle: make(map[string]string),
		now:      time.Now,
	}
}

// Create は一意性を確認してから保存します。確認と挿入は同じロック内で行います。
func (r *MemoryRepository) Create(ctx context.Context, identity *Identity) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	email := strings.ToLower(identity.Email)
	handle := strings.ToLower(identity.Handle)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; ok {
		return nil, ErrConflict
	}
	if _, ok := r.byHandle[handle]; ok {
		return nil, ErrConflict
	}

	stored := *identity
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := r.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.byID[stored.ID] = &stored
	r.byEmail[email] = stored.ID
	r.byHandle[handle] = stored.ID

	out := stored
	return &out, nil
}

// FindByID は ID で検索します。
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *stored
	return &out, nil
}

// FindByEmail はメールアドレス（大文字小文字を区別しない）で検索します。
func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

// UpdateProfile は名前・アバターを更新します。
func (r *MemoryRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Name != nil {
		stored.Name = *update.Name
	}
	if update.Avatar != nil {
		stored.Avatar = *update.Avatar
	}
	stored.UpdatedAt = r.now().UTC()

	out := *stored
	return &out, nil
}

// Delete は Identity を削除します（通常運用では使わず、テストでトークン発行後の削除を再現するために使います）。
func (r *MemoryRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byEmail, strings.ToLower(stored.Email))
	delete(r.byHandle, strings.ToLower(stored.Handle))
	delete(r.byID, id)
}
