package postgres

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Migrate applies the *.sql files of dir in name order. Applied versions are
// recorded in schema_migrations and skipped on later runs.
func Migrate(ctx context.Context, db DB, dir fs.FS, log *zap.Logger) (int, error) {
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(dir, ".")
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	applied := 0
	for _, name := range files {
		var exists bool
		if err := db.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)
		`, name).Scan(&exists); err != nil {
			return applied, fmt.Errorf("check %s: %w", name, err)
		}
		if exists {
			continue
		}

		content, err := fs.ReadFile(dir, name)
		if err != nil {
			return applied, err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if err := applyMigration(ctx, db, name, string(content)); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		log.Info("migration applied", zap.String("version", name))
		applied++
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db DB, name, content string) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, content); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
