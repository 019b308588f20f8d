package identity

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

const testID = "0b9d6f7e-3c2a-4d1e-9f8b-5a6c7d8e9f01"

func newMockRepo(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func identityRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "handle", "email", "avatar", "password_hash", "created_at", "updated_at"}).
		AddRow(testID, "Alice", "alice", "alice@example.com", "", "$2a$04$hash", now, now)
}

func TestPostgresCreate(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO identities")).
		WithArgs(testID, "Alice", "alice", "alice@example.com", "", "$2a$04$hash").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	got, err := repo.Create(context.Background(), &Identity{
		ID: testID, Name: "Alice", Handle: "Alice", Email: "Alice@Example.com", PasswordHash: "$2a$04$hash",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, now, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO identities")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_email_key"})

	_, err := repo.Create(context.Background(), &Identity{Name: "Alice", Handle: "alice", Email: "alice@example.com"})
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateWrapsOtherErrors(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO identities")).WillReturnError(sql.ErrConnDone)

	_, err := repo.Create(context.Background(), &Identity{Name: "Alice", Handle: "alice", Email: "alice@example.com"})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrConflict))
	require.ErrorIs(t, err, sql.ErrConnDone)
}

func TestPostgresFindByEmail(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(identityRows(now))

	got, err := repo.FindByEmail(context.Background(), "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, testID, got.ID)
	require.Equal(t, "$2a$04$hash", got.PasswordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM identities WHERE id = $1")).
		WithArgs(testID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), testID)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindByIDMalformedSkipsQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.FindByID(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateProfile(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	name := "Alice"

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE identities")).
		WithArgs(testID, "Alice", sqlmock.AnyArg()).
		WillReturnRows(identityRows(now))

	got, err := repo.UpdateProfile(context.Background(), testID, ProfileUpdate{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Alice", got.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}
