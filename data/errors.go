package data

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ConstraintKind identifies which class of data-integrity rule failed.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
)

// ConstraintViolationError reports a uniqueness, reference or nullability
// rule violated at commit. It always names the field or relationship so
// callers can translate it without parsing driver text.
type ConstraintViolationError struct {
	Kind       ConstraintKind
	Entity     string
	Field      string
	Constraint string
}

func (e *ConstraintViolationError) Error() string {
	target := e.Field
	if target == "" {
		target = e.Constraint
	}
	if e.Constraint != "" && e.Constraint != target {
		return fmt.Sprintf("%s constraint violated on %s.%s (%s)", e.Kind, e.Entity, target, e.Constraint)
	}
	return fmt.Sprintf("%s constraint violated on %s.%s", e.Kind, e.Entity, target)
}

// WriteConflictError reports a lost optimistic-lock race or a
// serialization failure. Callers may retry with refreshed state.
type WriteConflictError struct {
	Entity  string
	ID      any
	Version uint
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict on %s (id=%v, expected version %d)", e.Entity, e.ID, e.Version)
}

// AsConstraintViolation unwraps err into a ConstraintViolationError if possible.
func AsConstraintViolation(err error) (*ConstraintViolationError, bool) {
	var cv *ConstraintViolationError
	ok := errors.As(err, &cv)
	return cv, ok
}

// AsWriteConflict unwraps err into a WriteConflictError if possible.
func AsWriteConflict(err error) (*WriteConflictError, bool) {
	var wc *WriteConflictError
	ok := errors.As(err, &wc)
	return wc, ok
}

// ErrorIsNoRows validates if the supplied error is because of a record missing in the DB.
func ErrorIsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// SQLSTATE classes surfaced by the server for integrity failures.
const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
	pgCodeNotNullViolation    = "23502"
	pgCodeSerializationFail   = "40001"
	pgCodeDeadlockDetected    = "40P01"
)

// MapError translates a driver error raised while flushing the given
// entity into the library taxonomy. Errors outside the taxonomy pass
// through unchanged.
func MapError(entity string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgCodeUniqueViolation:
		return &ConstraintViolationError{
			Kind:       ConstraintUnique,
			Entity:     entity,
			Field:      fieldFromDetail(pgErr.Detail, pgErr.ConstraintName, pgErr.TableName),
			Constraint: pgErr.ConstraintName,
		}
	case pgCodeForeignKeyViolation:
		return &ConstraintViolationError{
			Kind:       ConstraintForeignKey,
			Entity:     entity,
			Field:      fieldFromDetail(pgErr.Detail, pgErr.ConstraintName, pgErr.TableName),
			Constraint: pgErr.ConstraintName,
		}
	case pgCodeNotNullViolation:
		return &ConstraintViolationError{
			Kind:   ConstraintNotNull,
			Entity: entity,
			Field:  pgErr.ColumnName,
		}
	case pgCodeSerializationFail, pgCodeDeadlockDetected:
		return &WriteConflictError{Entity: entity}
	default:
		return err
	}
}

// fieldFromDetail pulls the column name out of the server detail line,
// e.g. `Key (email)=(a@b.c) already exists.`, falling back to stripping
// the table prefix and constraint suffix off the constraint name.
func fieldFromDetail(detail, constraint, table string) string {
	if start := strings.Index(detail, "Key ("); start >= 0 {
		rest := detail[start+len("Key ("):]
		if end := strings.Index(rest, ")"); end > 0 {
			return rest[:end]
		}
	}

	field := constraint
	field = strings.TrimPrefix(field, table+"_")
	field = strings.TrimSuffix(field, "_fkey")
	field = strings.TrimSuffix(field, "_key")
	return field
}
