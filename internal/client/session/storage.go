package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StorageKey は永続化に使うキーです。
const StorageKey = "auth-storage"

// ErrCorrupt は永続化された内容を読めなかったことを表します。
var ErrCorrupt = errors.New("session: corrupt storage")

// Persisted は永続化される {identity, token} です。キーが無いことが匿名状態を表します。
type Persisted struct {
	Identity Identity `json:"identity"`
	Token    string   `json:"token"`
}

// Storage はセッションの永続化先です。Load は未保存なら (nil, nil) を返します。
type Storage interface {
	Load() (*Persisted, error)
	Save(p Persisted) error
	Clear() error
}

// FileStorage は <dir>/auth-storage.json に保存します。
type FileStorage struct {
	path string
}

// NewFileStorage は dir を作成して FileStorage を返します。
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	return &FileStorage{path: filepath.Join(dir, StorageKey+".json")}, nil
}

// Path は保存先ファイルのパスを返します。
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Load() (*Persisted, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var p Persisted
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &p, nil
}

// Save は一時ファイルに書いてから置き換えます。
func (f *FileStorage) Save(p Persisted) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (f *FileStorage) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryStorage はテスト用の永続化先です。
type MemoryStorage struct {
	mu     sync.Mutex
	value  *Persisted
	clears int
}

// NewMemoryStorage は空の MemoryStorage を作成します。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load() (*Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == nil {
		return nil, nil
	}
	out := *m.value
	return &out, nil
}

func (m *MemoryStorage) Save(p Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = &p
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = nil
	m.clears++
	return nil
}

// Clears は Clear が呼ばれた回数を返します。
func (m *MemoryStorage) Clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}
