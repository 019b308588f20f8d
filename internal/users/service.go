// Package users はプロフィールの参照・更新を提供します。
package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/yourusername/inkpost/internal/auth"
	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/posts"
	"github.com/yourusername/inkpost/internal/storage"
)

// AvatarStore はアバター画像の保存先です。
type AvatarStore interface {
	SaveAvatar(r io.Reader) (string, error)
	Delete(publicPath string) error
}

// AvatarCleaner は古いアバター画像の削除を非同期に予約し、その進捗を返します。
type AvatarCleaner interface {
	ScheduleAvatarDelete(ctx context.Context, ownerID, path string) (string, error)
	AvatarJob(ctx context.Context, jobID string) (*CleanupJob, error)
}

// ErrJobNotFound は削除ジョブの記録が存在しないことを表します。
var ErrJobNotFound = errors.New("cleanup job not found")

// CleanupJob は古いアバター画像を削除するジョブの状態です。
type CleanupJob struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileResult はプロフィール更新の結果です。
// 古いアバターの削除をキューに積んだ場合は CleanupJobID にジョブ ID が入ります。
type ProfileResult struct {
	*identity.Identity
	CleanupJobID string `json:"cleanupJobId,omitempty"`
}

// Options は Service の任意設定です。Cleaner が nil の場合は同期的に削除します。
type Options struct {
	Cleaner AvatarCleaner
	Logger  *zap.Logger
}

// ProfileInput はプロフィール更新の入力です。
type ProfileInput struct {
	Name   *string
	Avatar io.Reader
}

// Service はプロフィール操作をまとめます。更新対象は常に認証済みユーザー自身です。
type Service struct {
	identities identity.Repository
	posts      *posts.Service
	avatars    AvatarStore
	cleaner    AvatarCleaner
	logger     *zap.Logger
}

// NewService は Service を作成します。
func NewService(identities identity.Repository, postsSvc *posts.Service, avatars AvatarStore, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		identities: identities,
		posts:      postsSvc,
		avatars:    avatars,
		cleaner:    opts.Cleaner,
		logger:     logger,
	}
}

// Profile は認証済みユーザー自身の Identity を返します。
func (s *Service) Profile(ac *auth.Context) *identity.Identity {
	return ac.Identity
}

// UpdateProfile は名前・アバターを更新します。
func (s *Service) UpdateProfile(ctx context.Context, ac *auth.Context, in ProfileInput) (*ProfileResult, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := validateProfile(in); err != nil {
		return nil, auth.ValidationError(err.Error(), err)
	}

	update := identity.ProfileUpdate{Name: in.Name}
	var saved string
	if in.Avatar != nil {
		if s.avatars == nil {
			return nil, auth.ValidationError("アバターのアップロードは無効です", nil)
		}
		path, err := s.avatars.SaveAvatar(in.Avatar)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrTooLarge):
				return nil, auth.ValidationError("画像サイズが大きすぎます", err)
			case errors.Is(err, storage.ErrUnsupportedType):
				return nil, auth.ValidationError("png, jpeg, gif, webp の画像を選択してください", err)
			}
			return nil, fmt.Errorf("failed to save avatar: %w", err)
		}
		saved = path
		update.Avatar = &saved
	}

	previous := ac.Identity.Avatar
	updated, err := s.identities.UpdateProfile(ctx, ac.SubjectID(), update)
	if err != nil {
		if saved != "" {
			_ = s.avatars.Delete(saved)
		}
		if errors.Is(err, identity.ErrNotFound) {
			return nil, auth.ErrUnknownSubject
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	result := &ProfileResult{Identity: updated}
	if saved != "" && previous != "" && previous != saved {
		result.CleanupJobID = s.removeAvatar(ctx, updated.ID, previous)
	}
	s.logger.Info("profile updated", zap.String("subject", updated.ID))
	return result, nil
}

// AvatarJob は自分が依頼したアバター削除ジョブの状態を返します。
// 他人のジョブは存在しないものとして扱います。
func (s *Service) AvatarJob(ctx context.Context, ac *auth.Context, jobID string) (*CleanupJob, error) {
	if s.cleaner == nil {
		return nil, auth.NotFoundError("ジョブが見つかりません")
	}
	job, err := s.cleaner.AvatarJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, auth.NotFoundError("ジョブが見つかりません")
		}
		return nil, fmt.Errorf("failed to get cleanup job: %w", err)
	}
	if job.OwnerID != ac.SubjectID() {
		return nil, auth.NotFoundError("ジョブが見つかりません")
	}
	return job, nil
}

// PublicProfile はメールアドレスを含まない公開プロフィールを返します。
func (s *Service) PublicProfile(ctx context.Context, id string) (*identity.Public, error) {
	found, err := s.identities.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, auth.NotFoundError("ユーザーが見つかりません")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	public := found.Public()
	return &public, nil
}

// PostsOf はユーザーの投稿を新しい順に返します。
func (s *Service) PostsOf(ctx context.Context, id string) ([]posts.Post, error) {
	if _, err := s.PublicProfile(ctx, id); err != nil {
		return nil, err
	}
	return s.posts.ListByOwner(ctx, id)
}

// removeAvatar は古い画像を削除します。キューに積めた場合はジョブ ID を返します。
func (s *Service) removeAvatar(ctx context.Context, ownerID, path string) string {
	if s.cleaner != nil {
		jobID, err := s.cleaner.ScheduleAvatarDelete(ctx, ownerID, path)
		if err == nil {
			s.logger.Debug("avatar delete scheduled", zap.String("job", jobID), zap.String("path", path))
			return jobID
		}
		s.logger.Warn("failed to schedule avatar delete, deleting inline", zap.String("path", path), zap.Error(err))
	}
	if err := s.avatars.Delete(path); err != nil {
		s.logger.Warn("failed to delete old avatar", zap.String("path", path), zap.Error(err))
	}
	return ""
}

func validateProfile(in ProfileInput) error {
	errs := validation.Errors{}
	if in.Name != nil {
		errs["name"] = validation.Validate(*in.Name, validation.Required, validation.RuneLength(3, 50))
	}
	if in.Name == nil && in.Avatar == nil {
		errs["name"] = errors.New("name または profilePic を指定してください")
	}
	return errs.Filter()
}
