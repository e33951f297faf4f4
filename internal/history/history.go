// Package history keeps a SQLite ledger of verification runs and their
// captures so runs can be listed and compared after the fact.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"verifyshot/internal/runner"
)

// DBFile is the database file name inside the history directory.
const DBFile = "verifyshot.db"

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// DB is the run history store.
type DB struct {
	db   *sql.DB
	path string
}

// Run is one row of the runs table.
type Run struct {
	ID              string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	TargetURL       string    `json:"target_url"`
	Engine          string    `json:"engine"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	RunDir          string    `json:"run_dir,omitempty"`
	ConsoleMessages int       `json:"console_messages"`
}

// Capture is one screenshot taken during a run.
type Capture struct {
	RunID string `json:"run_id"`
	Index int    `json:"index"`
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Open opens or creates the history database in dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	path := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &DB{db: db, path: path}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := h.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return h, nil
}

// Path returns the database file path.
func (h *DB) Path() string { return h.path }

// Close closes the database.
func (h *DB) Close() error {
	return h.db.Close()
}

func (h *DB) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		target_url TEXT NOT NULL,
		engine TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		run_dir TEXT NOT NULL,
		console_messages INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS captures (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		label TEXT NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (run_id, label)
	);
	`
	_, err := h.db.ExecContext(ctx, schema)
	return err
}

// Record stores the result of a run, replacing an earlier row with the same id.
func (h *DB) Record(ctx context.Context, res runner.Result) error {
	m := res.Manifest
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, started_at, finished_at, target_url, engine, status, error, run_dir, console_messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RunID, formatTime(m.StartedAt), formatTime(m.FinishedAt), m.TargetURL, m.Engine,
		m.Status, m.Error, res.RunDir, m.ConsoleMessages,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM captures WHERE run_id = ?`, m.RunID); err != nil {
		return fmt.Errorf("clear captures: %w", err)
	}
	for _, c := range m.Captures() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO captures (run_id, idx, label, path) VALUES (?, ?, ?, ?)`,
			m.RunID, c.Index, c.Label, res.ArtifactPath(c.Screenshot),
		); err != nil {
			return fmt.Errorf("insert capture %s: %w", c.Label, err)
		}
	}
	return tx.Commit()
}

// List returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (h *DB) List(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, started_at, finished_at, target_url, engine, status, error, run_dir, console_messages
		FROM runs ORDER BY started_at DESC, id DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns one run by id.
func (h *DB) Get(ctx context.Context, id string) (Run, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, target_url, engine, status, error, run_dir, console_messages
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// Latest returns the most recent run.
func (h *DB) Latest(ctx context.Context) (Run, error) {
	runs, err := h.List(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrRunNotFound
	}
	return runs[0], nil
}

// Captures returns the captures of a run in step order.
func (h *DB) Captures(ctx context.Context, runID string) ([]Capture, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT run_id, idx, label, path FROM captures WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.RunID, &c.Index, &c.Label, &c.Path); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
	)
	if err := s.Scan(&r.ID, &started, &finished, &r.TargetURL, &r.Engine, &r.Status, &r.Error, &r.RunDir, &r.ConsoleMessages); err != nil {
		return Run{}, err
	}
	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, err
	}
	return r, nil
}

// Times are stored as fixed-width UTC strings so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
