package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yourusername/inkpost/internal/database"
)

const postColumns = `id, owner_id, title, content, created_at, updated_at`

// PostgresRepository は PostgreSQL 上の Repository 実装です。
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository は PostgresRepository を作成します。
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreatePost(ctx context.Context, post *Post) (*Post, error) {
	stored := *post
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO posts (id, owner_id, title, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	if err := r.db.QueryRowContext(ctx, query, stored.ID, stored.OwnerID, stored.Title, stored.Content).
		Scan(&stored.CreatedAt, &stored.UpdatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &stored, nil
}

func (r *PostgresRepository) GetPost(ctx context.Context, id string) (*Post, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanPost(r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
}

func (r *PostgresRepository) UpdatePost(ctx context.Context, id string, update PostUpdate) (*Post, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	const query = `
		UPDATE posts
		SET title = COALESCE($2, title),
		    content = COALESCE($3, content),
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + postColumns

	return scanPost(r.db.QueryRowContext(ctx, query, id, nullString(update.Title), nullString(update.Content)))
}

func (r *PostgresRepository) DeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	// 外部キーの ON DELETE CASCADE に頼らず、同じトランザクションでコメントも消す
	return database.WithTx(ctx, r.db, func(ctx context.Context, tx database.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = $1`, id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return execDelete(ctx, tx, `DELETE FROM posts WHERE id = $1`, id)
	})
}

func (r *PostgresRepository) ListPosts(ctx context.Context, q ListQuery) ([]Post, int, error) {
	where, args := listFilter(q)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	query := `SELECT ` + postColumns + ` FROM posts` + where + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]Post, 0)
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) CreateComment(ctx context.Context, comment *Comment) (*Comment, error) {
	if !validID(comment.PostID) {
		return nil, ErrNotFound
	}
	stored := *comment
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO comments (id, post_id, owner_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	if err := r.db.QueryRowContext(ctx, query, stored.ID, stored.PostID, stored.OwnerID, stored.Content).
		Scan(&stored.CreatedAt); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &stored, nil
}

func (r *PostgresRepository) GetComment(ctx context.Context, id string) (*Comment, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	var c Comment
	err := r.db.QueryRowContext(ctx,
		`SELECT id, post_id, owner_id, content, created_at FROM comments WHERE id = $1`, id,
	).Scan(&c.ID, &c.PostID, &c.OwnerID, &c.Content, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) ListComments(ctx context.Context, postID string) ([]Comment, error) {
	out := make([]Comment, 0)
	if !validID(postID) {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, post_id, owner_id, content, created_at FROM comments WHERE post_id = $1 ORDER BY created_at DESC, id DESC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.PostID, &c.OwnerID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) DeleteComment(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	return execDelete(ctx, r.db, `DELETE FROM comments WHERE id = $1`, id)
}

func listFilter(q ListQuery) (string, []any) {
	var clauses []string
	var args []any
	if q.OwnerID != "" {
		args = append(args, q.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(title ILIKE $%d OR content ILIKE $%d)", n, n))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func execDelete(ctx context.Context, db database.DBTX, query, id string) error {
	res, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPost(row *sql.Row) (*Post, error) {
	var p Post
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
