// Package statestore provides a SQLite-backed durable history of upstream
// health and metrics snapshots, for the admin API's /stats/history endpoint.
// The proxy's live state (health.Monitor, upstream.Registry's metrics
// windows) is entirely in-memory and resets on restart; this package exists
// only to retain a trailing window of that state across restarts, mirroring
// the teacher's sqlite+golang-migrate persistence idiom retargeted from
// configuration storage to observability history.
package statestore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Snapshot is one upstream's health/metrics state at a point in time.
type Snapshot struct {
	CapturedAt    time.Time
	UpstreamName  string
	State         string
	Samples       int
	SuccessRate   float64
	MeanLatencyMs float64
	InFlight      int64
}

// Store wraps a SQLite database holding a rolling history of Snapshots.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("statestore: open: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("statestore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	dbDriver, err := sqlite.WithInstance(s.conn, &sqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// WriteSnapshots inserts one row per Snapshot in a single transaction; a
// failure on any row rolls back the whole batch and is returned.
func (s *Store) WriteSnapshots(ctx context.Context, snaps []Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statestore: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO upstream_snapshots
			(captured_at, upstream_name, state, samples, success_rate, mean_latency_ms, in_flight)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("statestore: prepare: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if _, err := stmt.ExecContext(ctx, snap.CapturedAt, snap.UpstreamName, snap.State,
			snap.Samples, snap.SuccessRate, snap.MeanLatencyMs, snap.InFlight); err != nil {
			return fmt.Errorf("statestore: insert %s: %w", snap.UpstreamName, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit of the most recently captured snapshots,
// newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT captured_at, upstream_name, state, samples, success_rate, mean_latency_ms, in_flight
		FROM upstream_snapshots
		ORDER BY captured_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("statestore: query: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.CapturedAt, &snap.UpstreamName, &snap.State,
			&snap.Samples, &snap.SuccessRate, &snap.MeanLatencyMs, &snap.InFlight); err != nil {
			return nil, fmt.Errorf("statestore: scan: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
