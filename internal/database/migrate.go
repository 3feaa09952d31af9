package database

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/redmonkez12/go-otp-auth/internal/database/migrations"
)

// migrationSource returns the goose dialect and migration directory for db.
func migrationSource(db *bun.DB) (string, fs.FS, error) {
	var gooseDialect, dir string
	switch db.Dialect().Name() {
	case dialect.PG:
		gooseDialect, dir = "postgres", "postgres"
	case dialect.SQLite:
		gooseDialect, dir = "sqlite3", "sqlite"
	default:
		return "", nil, fmt.Errorf("no migrations for dialect %s", db.Dialect().Name())
	}

	sub, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return "", nil, err
	}
	return gooseDialect, sub, nil
}

func prepareGoose(db *bun.DB) error {
	gooseDialect, fsys, err := migrationSource(db)
	if err != nil {
		return err
	}

	goose.SetBaseFS(fsys)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// MigrateUp applies all pending migrations.
func MigrateUp(ctx context.Context, db *bun.DB) error {
	if err := prepareGoose(db); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *bun.DB) error {
	if err := prepareGoose(db); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, db.DB, "."); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrationVersion returns the currently applied schema version.
func MigrationVersion(ctx context.Context, db *bun.DB) (int64, error) {
	if err := prepareGoose(db); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersionContext(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
