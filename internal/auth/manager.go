package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/metrics"
)

// defaultHandle はメールアドレスからハンドルを導出できなかった場合の値です。
const defaultHandle = "user"

// RegisterInput は新規登録の入力です。ConfirmPassword は送られた場合のみ照合します。
type RegisterInput struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	ConfirmPassword *string `json:"confirmPassword"`
}

// Validate は入力形式を検証します。
func (in RegisterInput) Validate() error {
	errs := validation.Errors{
		"name":     validation.Validate(in.Name, validation.Required, validation.RuneLength(3, 50)),
		"email":    validation.Validate(in.Email, validation.Required, is.Email),
		"password": validation.Validate(in.Password, validation.Required, validation.Length(8, 72)),
	}
	if in.ConfirmPassword != nil && *in.ConfirmPassword != in.Password {
		errs["confirmPassword"] = errors.New("パスワードが一致しません")
	}
	return errs.Filter()
}

// LoginInput はログインの入力です。
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate は必須項目のみを確認します。形式の誤りは認証失敗として扱います。
func (in LoginInput) Validate() error {
	return validation.Errors{
		"email":    validation.Validate(in.Email, validation.Required),
		"password": validation.Validate(in.Password, validation.Required),
	}.Filter()
}

// Session は登録・ログイン成功時に返す Identity とトークンの組です。
type Session struct {
	Identity  *identity.Identity `json:"identity"`
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expiresAt"`
}

// Service は登録・ログインを行い、セッショントークンを発行します。
type Service struct {
	repo      identity.Repository
	tokens    *TokenManager
	cost      int
	dummyHash []byte
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewService は Service を作成します。
// 存在しないメールアドレスでのログイン時に比較するダミーハッシュをここで生成します。
func NewService(repo identity.Repository, tokens *TokenManager, cost int, logger *zap.Logger, m *metrics.Metrics) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("inkpost-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		cost:      cost,
		dummyHash: dummy,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Register は入力を検証して Identity を作成し、トークンを発行します。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := in.Validate(); err != nil {
		s.metrics.AuthEvent("register", "invalid_input")
		return nil, ValidationError(err.Error(), err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	created, err := s.repo.Create(ctx, &identity.Identity{
		Name:         in.Name,
		Handle:       DeriveHandle(in.Email),
		Email:        in.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, identity.ErrConflict) {
			s.metrics.AuthEvent("register", "conflict")
			return nil, ConflictError("このメールアドレスまたはハンドルは既に登録されています")
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	session, err := s.issue(created)
	if err != nil {
		return nil, err
	}
	s.metrics.AuthEvent("register", "success")
	s.logger.Info("identity registered", zap.String("subject", created.ID), zap.String("handle", created.Handle))
	return session, nil
}

// Login はメールアドレスとパスワードを検証し、トークンを発行します。
// メールアドレス不明とパスワード不一致は同じ ErrInvalidCredentials になります。
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := in.Validate(); err != nil {
		s.metrics.AuthEvent("login", "invalid_input")
		return nil, ValidationError(err.Error(), err)
	}

	found, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, fmt.Errorf("failed to find identity: %w", err)
		}
		// 存在有無が応答時間に出ないようにダミーハッシュと比較する
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		s.metrics.AuthEvent("login", "invalid_credentials")
		s.logger.Warn("login failed")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(in.Password)); err != nil {
		s.metrics.AuthEvent("login", "invalid_credentials")
		s.logger.Warn("login failed", zap.String("subject", found.ID))
		return nil, ErrInvalidCredentials
	}

	session, err := s.issue(found)
	if err != nil {
		return nil, err
	}
	s.metrics.AuthEvent("login", "success")
	s.logger.Info("login succeeded", zap.String("subject", found.ID))
	return session, nil
}

func (s *Service) issue(id *identity.Identity) (*Session, error) {
	token, expiresAt, err := s.tokens.Mint(id.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Identity: id, Token: token, ExpiresAt: expiresAt}, nil
}

// DeriveHandle はメールアドレスのローカル部からハンドルを導出します。
// 小文字化し、[a-z0-9._] 以外の文字を取り除きます。
func DeriveHandle(email string) string {
	local := email
	if at := strings.LastIndex(email, "@"); at >= 0 {
		local = email[:at]
	}

	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return defaultHandle
	}
	return b.String()
}
