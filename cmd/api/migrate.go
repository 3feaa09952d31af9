package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-otp-auth/internal/database"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *bun.DB) error {
				if err := database.MigrateUp(ctx, db); err != nil {
					return err
				}
				return printVersion(ctx, cmd, db)
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *bun.DB) error {
				if err := database.MigrateDown(ctx, db); err != nil {
					return err
				}
				return printVersion(ctx, cmd, db)
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, db *bun.DB) error {
				return printVersion(ctx, cmd, db)
			})
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, statusCmd)
	return migrateCmd
}

func withDB(ctx context.Context, fn func(context.Context, *bun.DB) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return fn(ctx, db)
}

func printVersion(ctx context.Context, cmd *cobra.Command, db *bun.DB) error {
	version, err := database.MigrationVersion(ctx, db)
	if err != nil {
		return err
	}
	cmd.Printf("schema version: %d\n", version)
	return nil
}
