package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/inkpost/internal/identity"
	"github.com/yourusername/inkpost/internal/metrics"
)

// Context は検証済みトークンから導出したリクエスト単位の認証情報です。
// Verifier.Authenticate 以外では作成しません。
type Context struct {
	Identity  *identity.Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SubjectID は認証済みユーザーの ID を返します。
func (ac *Context) SubjectID() string {
	return ac.Identity.ID
}

// Verifier はリクエストごとにトークンを検証し、Identity を解決します。
type Verifier struct {
	tokens  *TokenManager
	repo    identity.Repository
	metrics *metrics.Metrics
}

// NewVerifier は Verifier を作成します。
func NewVerifier(tokens *TokenManager, repo identity.Repository, m *metrics.Metrics) *Verifier {
	return &Verifier{tokens: tokens, repo: repo, metrics: m}
}

// Authenticate は生のトークンを検証して Context を返します。
func (v *Verifier) Authenticate(ctx context.Context, raw string) (*Context, error) {
	if raw == "" {
		v.metrics.AuthEvent("authenticate", "missing_credential")
		return nil, ErrMissingCredential
	}

	claims, err := v.tokens.Parse(raw)
	if err != nil {
		if KindOf(err) == KindExpiredToken {
			v.metrics.AuthEvent("authenticate", "expired_token")
		} else {
			v.metrics.AuthEvent("authenticate", "invalid_token")
		}
		return nil, err
	}

	found, err := v.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			v.metrics.AuthEvent("authenticate", "unknown_subject")
			return nil, ErrUnknownSubject
		}
		return nil, fmt.Errorf("failed to resolve subject: %w", err)
	}

	v.metrics.AuthEvent("authenticate", "success")
	return &Context{
		Identity:  found,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
