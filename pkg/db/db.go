// Package db persists the fetch history in a local sqlite database.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"artifetch/pkg/fetch"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPath returns the per-user history database path
// (~/.local/share/artifetch/history.db), honoring the ARTIFETCH_DATA
// override.
func DefaultPath() (string, error) {
	if dir := os.Getenv("ARTIFETCH_DATA"); dir != "" {
		return filepath.Join(dir, "history.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "artifetch", "history.db"), nil
}

// Store records and lists fetch events. It implements fetch.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies any
// pending schema migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := applyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database %s: %w", path, err)
	}
	return &Store{db: conn}, nil
}

func applyMigrations(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one fetch event.
func (s *Store) Record(ctx context.Context, ev fetch.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_log (fetched_at, url, resolved_url, output_path, digest, cache_hit, outcome, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Time.Unix(), ev.URL, ev.ResolvedURL, ev.OutputPath, ev.Digest,
		boolToInt(ev.CacheHit), ev.Outcome, ev.Duration.Milliseconds(),
	)
	return err
}

// List returns the most recent events, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]fetch.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fetched_at, url, resolved_url, output_path, digest, cache_hit, outcome, duration_ms
		FROM fetch_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []fetch.Event
	for rows.Next() {
		var ev fetch.Event
		var ts int64
		var hit int
		var durMs int64
		if err := rows.Scan(&ts, &ev.URL, &ev.ResolvedURL, &ev.OutputPath, &ev.Digest, &hit, &ev.Outcome, &durMs); err != nil {
			return nil, err
		}
		ev.Time = time.Unix(ts, 0)
		ev.CacheHit = hit != 0
		ev.Duration = time.Duration(durMs) * time.Millisecond
		events = append(events, ev)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
