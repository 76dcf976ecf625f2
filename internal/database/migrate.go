package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate applies every pending *.up.sql migration in lexical order and
// returns the versions it applied.
func Migrate(ctx context.Context, db execer) ([]string, error) {
	return migrate(ctx, db, migrationFiles, "migrations")
}

func migrate(ctx context.Context, db execer, files fs.FS, dir string) ([]string, error) {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var upMigrations []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upMigrations = append(upMigrations, entry.Name())
		}
	}
	sort.Strings(upMigrations)

	query := "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)"

	var applied []string
	for _, migration := range upMigrations {
		var exists bool
		if err := db.QueryRow(ctx, query, migration).Scan(&exists); err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", migration, err)
		}
		if exists {
			continue
		}

		sqlBytes, err := fs.ReadFile(files, dir+"/"+migration)
		if err != nil {
			return applied, fmt.Errorf("failed to read sql file %s: %w", migration, err)
		}

		if _, err := db.Exec(ctx, string(sqlBytes)); err != nil {
			return applied, fmt.Errorf("failed to apply sql file %s: %w", migration, err)
		}

		if _, err := db.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", migration); err != nil {
			return applied, fmt.Errorf("failed to record migration %s: %w", migration, err)
		}
		applied = append(applied, migration)
	}

	return applied, nil
}
