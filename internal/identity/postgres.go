package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yourusername/inkpost/internal/database"
)

const identityColumns = `id, name, handle, email, avatar, password_hash, created_at, updated_at`

// PostgresRepository は PostgreSQL 上の Repository 実装です。
// 一意性は identities テーブルの UNIQUE 制約で保証します。
type PostgresRepository struct {
	db database.DBTX
}

// NewPostgresRepository は PostgresRepository を作成します。
func NewPostgresRepository(db database.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, identity *Identity) (*Identity, error) {
	stored := *identity
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.Email = strings.ToLower(stored.Email)
	stored.Handle = strings.ToLower(stored.Handle)

	const query = `
		INSERT INTO identities (id, name, handle, email, avatar, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		stored.ID, stored.Name, stored.Handle, stored.Email, stored.Avatar, stored.PasswordHash,
	).Scan(&stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &stored, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return r.scanOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return r.scanOne(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, strings.ToLower(email))
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (*Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	const query = `
		UPDATE identities
		SET name = COALESCE($2, name),
		    avatar = COALESCE($3, avatar),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + identityColumns

	return r.scanOne(ctx, query, id, nullString(update.Name), nullString(update.Avatar))
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, args ...any) (*Identity, error) {
	var i Identity
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&i.ID, &i.Name, &i.Handle, &i.Email, &i.Avatar, &i.PasswordHash, &i.CreatedAt, &i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &i, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
