// Package storage はアップロードされたアバター画像のローカル保存を提供します。
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// PublicPrefix は保存したファイルを配信する URL パスです。
const PublicPrefix = "/uploads/"

var (
	// ErrTooLarge はファイルサイズが上限を超えたことを表します。
	ErrTooLarge = errors.New("file too large")
	// ErrUnsupportedType は画像として許可されていない形式であることを表します。
	ErrUnsupportedType = errors.New("unsupported file type")
)

// 内容から判定した MIME タイプと保存時の拡張子
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalStorage はアバター画像をディレクトリに保存します。
type LocalStorage struct {
	dir     string
	maxSize int64
}

// NewLocalStorage は保存先ディレクトリを作成して LocalStorage を返します。
func NewLocalStorage(dir string, maxSize int64) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalStorage{dir: dir, maxSize: maxSize}, nil
}

// Dir は保存先ディレクトリを返します。
func (s *LocalStorage) Dir() string {
	return s.dir
}

// SaveAvatar は r の内容を検証して保存し、公開パス（/uploads/<name>）を返します。
// 形式はファイル名ではなく内容から判定します。
func (s *LocalStorage) SaveAvatar(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return "", ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	ext, ok := allowedTypes[mtype.String()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	name := uuid.NewString() + ext
	dst := filepath.Join(s.dir, name)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write avatar: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move avatar: %w", err)
	}
	return PublicPrefix + name, nil
}

// Delete は公開パスに対応するファイルを削除します。存在しない場合は何もしません。
// 保存先ディレクトリの外は指せません。
func (s *LocalStorage) Delete(publicPath string) error {
	if !strings.HasPrefix(publicPath, PublicPrefix) {
		return nil
	}
	name := path.Base(publicPath)
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}
