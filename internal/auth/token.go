package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims はセッショントークンのペイロードです（sub, iat, exp）。
type Claims struct {
	jwt.RegisteredClaims
}

// TokenManager は HS256 でセッショントークンを発行・検証します。サーバー側に状態は持ちません。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager は TokenManager を作成します。now が nil の場合は time.Now を使います。
func NewTokenManager(secret string, ttl time.Duration, now func() time.Time) *TokenManager {
	if now == nil {
		now = time.Now
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL はトークンの有効期間を返します。
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// Mint は subjectID に紐づくトークンを発行します。iat = now, exp = now + TTL です。
func (m *TokenManager) Mint(subjectID string) (string, time.Time, error) {
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse は署名と有効期限を検証し、Claims を返します。
// 期限切れは ErrExpiredToken、それ以外の不正はすべて ErrInvalidToken になります。
func (m *TokenManager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &Error{Kind: KindExpiredToken, Code: ErrExpiredToken.Code, Message: ErrExpiredToken.Message, Err: err}
		}
		return nil, &Error{Kind: KindInvalidToken, Code: ErrInvalidToken.Code, Message: ErrInvalidToken.Message, Err: err}
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
