package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"

	"github.com/flowctl/flowctl/internal/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// applyMigrations brings db up to the latest schema version, tracked in a
// schema_migrations table keyed by file name. golang-migrate's own sqlite3
// database driver pulls in mattn/go-sqlite3 (cgo) purely to register a second
// "sqlite3" sql.DB driver alongside the pure-Go ncruces one already in use
// everywhere else in this module, which is why migrations here are applied
// directly against the already-open *sql.DB instead — same embed.FS-sourced,
// versioned-file shape golang-migrate's iofs source uses, without the
// competing driver.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		var applied int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, name).Scan(&applied)
		if err == nil {
			continue // already applied
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking migration %s: %w", name, err)
		}

		contents, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, strftime('%s','now'))`, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
		log.Debug(log.CatDB, "applied migration", "version", name)
	}
	return nil
}
