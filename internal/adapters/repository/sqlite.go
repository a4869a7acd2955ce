package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/krawlist/eventengine/internal/domain/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore implements Store on a SQLite database. Records are keyed by
// identity hash and stored as their serialized shape.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dsn, configures WAL mode and applies
// pending migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps pragmas and in-memory databases consistent.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	s := &SQLiteStore{db: db}
	if _, err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrate applies the embedded migrations and returns the schema version.
func (s *SQLiteStore) migrate() (uint, error) {
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: migrate driver")
	}
	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: migrate source")
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: migrate instance")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, eris.Wrap(err, "sqlite: migrate up")
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: migrate version")
	}
	if dirty {
		return version, eris.Errorf("sqlite: schema version %d is dirty", version)
	}
	return version, nil
}

func sqliteTarget(hash string) string {
	return "sqlite:events/" + hash
}

// List implements Store. Rows come back in insertion order.
func (s *SQLiteStore) List(ctx context.Context) (Catalog, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hash, payload FROM events ORDER BY rowid`)
	if err != nil {
		return Catalog{}, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var out Catalog
	for rows.Next() {
		var hash, payload string
		if err := rows.Scan(&hash, &payload); err != nil {
			return Catalog{}, eris.Wrap(err, "sqlite: scan event")
		}
		target := sqliteTarget(hash)
		var raw model.RawEvent
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			out.Failures = append(out.Failures, LoadFailure{Target: target, Err: fmt.Errorf("%w: payload: %v", model.ErrParse, err)})
			continue
		}
		rec, err := model.ParseRawEvent(raw)
		if err != nil {
			out.Failures = append(out.Failures, LoadFailure{Target: target, Err: err})
			continue
		}
		out.Entries = append(out.Entries, Entry{Record: rec, Target: target})
	}
	if err := rows.Err(); err != nil {
		return Catalog{}, eris.Wrap(err, "sqlite: iterate events")
	}
	return out, nil
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, rec model.EventRecord) (string, error) {
	raw := model.ToRaw(&rec)
	target := sqliteTarget(raw.EventHash)
	payload, err := json.Marshal(raw)
	if err != nil {
		return target, eris.Wrap(err, "sqlite: marshal event")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (hash, date, title, location, status, recurring_parent, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		raw.EventHash, raw.Date, raw.Title, raw.Location, raw.Status, raw.RecurringParent, string(payload),
	)
	if err != nil {
		return target, eris.Wrapf(err, "sqlite: insert event %s", raw.EventHash)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return target, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return target, fmt.Errorf("%s: %w", target, ErrAlreadyExists)
	}
	return target, nil
}

// RecordRun implements RunRecorder.
func (s *SQLiteStore) RecordRun(ctx context.Context, run RunSummary) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at, finished_at, stats) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET finished_at = excluded.finished_at, stats = excluded.stats`,
		run.ID, run.Kind, run.StartedAt.UTC().Format(time.RFC3339), run.FinishedAt.UTC().Format(time.RFC3339), string(stats),
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

// SaveAssignments implements AssignmentRecorder. The run must have been
// recorded first.
func (s *SQLiteStore) SaveAssignments(ctx context.Context, runID string, assignments map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cluster_assignments (run_id, event_hash, cluster_id) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, event_hash) DO UPDATE SET cluster_id = excluded.cluster_id`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare assignments")
	}
	defer stmt.Close()

	for hash, clusterID := range assignments {
		if _, err := stmt.ExecContext(ctx, runID, hash, clusterID); err != nil {
			return eris.Wrapf(err, "sqlite: assign %s", hash)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit assignments")
}

// Assignments returns the record-to-cluster mapping saved for a run.
func (s *SQLiteStore) Assignments(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_hash, cluster_id FROM cluster_assignments WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assignments")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var hash, clusterID string
		if err := rows.Scan(&hash, &clusterID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		out[hash] = clusterID
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate assignments")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
