package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/qdmz/webchaxun/internal/database/migrations"
)

// Migrate applies the embedded schema. With down set it rolls back the
// latest migration instead.
func Migrate(ctx context.Context, dsn string, down bool) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if down {
		err = goose.DownContext(ctx, db, ".")
	} else {
		err = goose.UpContext(ctx, db, ".")
	}
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
