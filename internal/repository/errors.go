package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qdmz/webchaxun/internal/common"
)

const uniqueViolation = "23505"

var (
	ErrUserNotFound = fmt.Errorf("user %w", common.ErrNotFound)
	ErrFileNotFound = fmt.Errorf("file %w", common.ErrNotFound)
)

// mapError turns driver errors into domain sentinels.
func mapError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, common.ErrConflict)
	}
	return err
}
