// Package sqlite opens the embedded modernc.org/sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"certregistry/internal/platform/config"
)

// DSN builds the connection string for path with WAL journaling and the
// configured busy timeout.
func DSN(cfg config.SQLiteConfig) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open opens the database file and verifies it is usable.
func Open(ctx context.Context, cfg config.SQLiteConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping failed: %w", err)
	}
	return db, nil
}
