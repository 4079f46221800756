// Package store is the Database Provider (C3): a sqlite-backed
// implementation of workflow.Store, grounded on the teacher's
// internal/infrastructure/sqlite package (SessionModel's nullable-pointer row
// shape, sessionRepository's typed-not-found query style) and
// internal/beads/client.go for the connection-opening pattern.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/flowctl/flowctl/internal/log"
)

// Open opens the workflow database at path (or ":memory:" for a transient
// store used by tests), applying any pending schema migrations, and returns
// a ready-to-use *sql.DB.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if dsn != ":memory:" {
		dsn = "file:" + path
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening workflow database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging workflow database: %w", err)
	}
	// SQLite only allows one writer at a time; serialize writers at the
	// connection-pool level rather than surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)

	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating workflow database: %w", err)
	}
	log.Info(log.CatDB, "workflow database ready", "path", path)
	return db, nil
}
