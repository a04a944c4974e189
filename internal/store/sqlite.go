// Package store keeps confirmed bookings, uploaded documents with their
// full-text chunk index, and conversation transcripts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/soyeahso/clinicbot/internal/logging"
)

var ErrNotFound = errors.New("not found")

const memoryDB = ":memory:"

// connPragmas apply to every pooled connection, so they travel in the DSN.
var connPragmas = []string{"foreign_keys(1)", "busy_timeout(5000)"}

type DB struct {
	sql *sql.DB
	log *logging.Logger
}

// Open opens the database at path, creating it and its directory when
// missing, and brings the schema up to date. ":memory:" gives a private
// database that lives as long as the returned DB.
func Open(path string, log *logging.Logger) (*DB, error) {
	ctx := context.Background()
	if path != memoryDB {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: creating %s: %w", filepath.Dir(path), err)
		}
	}

	handle, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	if path == memoryDB {
		handle.SetMaxOpenConns(1)
	} else if _, err := handle.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("store: enabling WAL: %w", err)
	}

	db := &DB{sql: handle, log: log.Sub("store")}
	if err := db.migrate(ctx); err != nil {
		handle.Close()
		return nil, err
	}
	db.log.Info().Str("path", path).Int("schema", len(migrations)).Msg("database ready")
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

func (db *DB) Close() error {
	return db.sql.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.sql.PingContext(ctx)
}

// migrate applies, in order, every migration not yet recorded in
// schema_migrations. Each one commits on its own.
func (db *DB) migrate(ctx context.Context) error {
	const ledger = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`
	if _, err := db.sql.ExecContext(ctx, ledger); err != nil {
		return fmt.Errorf("store: creating migration ledger: %w", err)
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("store: migration %d (%s): %w", m.Version, m.Name, err)
		}
		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("migration applied")
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := db.sql.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("store: reading migration ledger: %w", err)
	}
	defer rows.Close()

	seen := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		seen[v] = true
	}
	return seen, rows.Err()
}

func (db *DB) apply(ctx context.Context, m migration) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return err
	}
	return tx.Commit()
}
