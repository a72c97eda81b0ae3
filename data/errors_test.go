package data

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapErrorUniqueViolation(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{
		Code:           "23505",
		Detail:         `Key (email)=(a@b.c) already exists.`,
		ConstraintName: "users_email_key",
		TableName:      "users",
	}

	err := MapError("user", fmt.Errorf("exec insert: %w", pgErr))
	cv, ok := AsConstraintViolation(err)
	require.True(t, ok)
	require.Equal(t, ConstraintUnique, cv.Kind)
	require.Equal(t, "user", cv.Entity)
	require.Equal(t, "email", cv.Field)
	require.Equal(t, "users_email_key", cv.Constraint)
}

func TestMapErrorUniqueViolationWithoutDetail(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "users_handle_key",
		TableName:      "users",
	}

	err := MapError("user", pgErr)
	cv, ok := AsConstraintViolation(err)
	require.True(t, ok)
	require.Equal(t, "handle", cv.Field)
}

func TestMapErrorForeignKeyViolation(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{
		Code:           "23503",
		ConstraintName: "posts_user_id_fkey",
		TableName:      "posts",
	}

	err := MapError("post", pgErr)
	cv, ok := AsConstraintViolation(err)
	require.True(t, ok)
	require.Equal(t, ConstraintForeignKey, cv.Kind)
	require.Equal(t, "user_id", cv.Field)
}

func TestMapErrorNotNullViolation(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{Code: "23502", ColumnName: "body"}

	err := MapError("post", pgErr)
	cv, ok := AsConstraintViolation(err)
	require.True(t, ok)
	require.Equal(t, ConstraintNotNull, cv.Kind)
	require.Equal(t, "body", cv.Field)
}

func TestMapErrorSerializationFailure(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"40001", "40P01"} {
		err := MapError("user", &pgconn.PgError{Code: code})
		wc, ok := AsWriteConflict(err)
		require.True(t, ok, "code %s", code)
		require.Equal(t, "user", wc.Entity)
	}
}

func TestMapErrorPassesThroughUnknownErrors(t *testing.T) {
	t.Parallel()

	require.NoError(t, MapError("user", nil))

	plain := errors.New("connection reset by peer")
	require.Equal(t, plain, MapError("user", plain))

	other := &pgconn.PgError{Code: "42P01"}
	require.Equal(t, error(other), MapError("user", other))
}

func TestErrorIsNoRows(t *testing.T) {
	t.Parallel()

	require.True(t, ErrorIsNoRows(pgx.ErrNoRows))
	require.True(t, ErrorIsNoRows(sql.ErrNoRows))
	require.False(t, ErrorIsNoRows(errors.New("boom")))
	require.False(t, ErrorIsNoRows(nil))
}

func TestConstraintViolationErrorMessage(t *testing.T) {
	t.Parallel()

	cv := &ConstraintViolationError{
		Kind:       ConstraintUnique,
		Entity:     "user",
		Field:      "email",
		Constraint: "users_email_key",
	}
	require.Contains(t, cv.Error(), "user.email")
	require.Contains(t, cv.Error(), "unique")

	wc := &WriteConflictError{Entity: "user", ID: "u1", Version: 3}
	require.Contains(t, wc.Error(), "expected version 3")
}
