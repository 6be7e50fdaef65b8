// Package journal keeps a local history of finished operations in SQLite.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/jmoiron/sqlx"
	"github.com/openmined/s3ops/internal/db"
	"github.com/openmined/s3ops/internal/operation"
)

var ErrJournalLocked = errors.New("journal is locked by another process")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS operations (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	bucket TEXT NOT NULL,
	description TEXT NOT NULL,
	state TEXT NOT NULL,
	total_units INTEGER NOT NULL,
	completed_units INTEGER NOT NULL,
	skipped_units INTEGER NOT NULL,
	transferred_bytes INTEGER NOT NULL,
	error_count INTEGER NOT NULL,
	errors TEXT NOT NULL,
	fatal TEXT NOT NULL,
	created_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_finished_at ON operations(finished_at);
`

const selectColumns = `id, kind, bucket, description, state, total_units, completed_units,
	skipped_units, transferred_bytes, error_count, errors, fatal, created_at, finished_at`

// Entry is one finished operation.
type Entry struct {
	ID               string                 `json:"id"`
	Kind             operation.Kind         `json:"kind"`
	Bucket           string                 `json:"bucket"`
	Description      string                 `json:"description"`
	State            operation.State        `json:"state"`
	TotalUnits       int64                  `json:"totalUnits"`
	CompletedUnits   int64                  `json:"completedUnits"`
	SkippedUnits     int64                  `json:"skippedUnits"`
	TransferredBytes int64                  `json:"transferredBytes"`
	Errors           []operation.ErrorEntry `json:"errors"`
	Fatal            *operation.ErrorEntry  `json:"fatal,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	FinishedAt       time.Time              `json:"finishedAt"`
}

type entryRow struct {
	ID               string `db:"id"`
	Kind             string `db:"kind"`
	Bucket           string `db:"bucket"`
	Description      string `db:"description"`
	State            string `db:"state"`
	TotalUnits       int64  `db:"total_units"`
	CompletedUnits   int64  `db:"completed_units"`
	SkippedUnits     int64  `db:"skipped_units"`
	TransferredBytes int64  `db:"transferred_bytes"`
	ErrorCount       int    `db:"error_count"`
	Errors           string `db:"errors"`
	Fatal            string `db:"fatal"`
	CreatedAt        string `db:"created_at"`
	FinishedAt       string `db:"finished_at"`
}

// Journal records terminal snapshots. A file backed journal holds an exclusive
// lock next to the database for as long as it is open.
type Journal struct {
	db   *sqlx.DB
	lock *flock.Flock
}

// Open opens or creates the journal at path. Use ":memory:" for a throwaway journal.
func Open(ctx context.Context, path string) (*Journal, error) {
	var lock *flock.Flock
	if path != ":memory:" {
		lock = flock.New(path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock journal: %w", err)
		}
		if !locked {
			return nil, ErrJournalLocked
		}
	}

	conn, err := db.NewSqliteDB(db.WithPath(path), db.WithMaxOpenConns(1))
	if err != nil {
		unlock(lock)
		return nil, err
	}
	if err := db.Migrate(ctx, conn, schemaSQL); err != nil {
		conn.Close()
		unlock(lock)
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	return &Journal{db: conn, lock: lock}, nil
}

func (j *Journal) Close() error {
	err := j.db.Close()
	unlock(j.lock)
	return err
}

// Record stores the snapshot of a finished operation. Non-terminal snapshots are ignored.
func (j *Journal) Record(ctx context.Context, snap operation.Snapshot) error {
	if !snap.IsTerminal() {
		return nil
	}

	errs := snap.Errors
	if errs == nil {
		errs = []operation.ErrorEntry{}
	}
	errsJSON, err := jsonMarshal(errs)
	if err != nil {
		return fmt.Errorf("encode errors: %w", err)
	}
	fatalJSON := []byte{}
	if snap.Fatal != nil {
		if fatalJSON, err = jsonMarshal(snap.Fatal); err != nil {
			return fmt.Errorf("encode fatal error: %w", err)
		}
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO operations (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Kind), snap.Bucket, snap.Description, string(snap.State),
		snap.TotalUnits, snap.CompletedUnits, snap.SkippedUnits, snap.TransferredBytes,
		len(snap.Errors), string(errsJSON), string(fatalJSON),
		formatTime(snap.CreatedAt), formatTime(snap.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record operation %s: %w", snap.ID, err)
	}
	return nil
}

// Hook returns a terminal hook that records every finished operation.
func (j *Journal) Hook() func(operation.Snapshot) {
	return func(snap operation.Snapshot) {
		if err := j.Record(context.Background(), snap); err != nil {
			slog.Error("journal record", "op", snap.ID, "error", err)
		}
	}
}

// List returns the most recently finished operations first. A non-positive
// limit returns everything.
func (j *Journal) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `SELECT ` + selectColumns + ` FROM operations ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []entryRow
	if err := j.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Get returns the entry for id.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, bool, error) {
	var row entryRow
	err := j.db.GetContext(ctx, &row, `SELECT `+selectColumns+` FROM operations WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get operation %s: %w", id, err)
	}
	entry, err := row.entry()
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Prune keeps the newest keep entries and deletes the rest.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM operations WHERE id NOT IN (SELECT id FROM operations ORDER BY finished_at DESC, id LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

func (r *entryRow) entry() (*Entry, error) {
	e := &Entry{
		ID:               r.ID,
		Kind:             operation.Kind(r.Kind),
		Bucket:           r.Bucket,
		Description:      r.Description,
		State:            operation.State(r.State),
		TotalUnits:       r.TotalUnits,
		CompletedUnits:   r.CompletedUnits,
		SkippedUnits:     r.SkippedUnits,
		TransferredBytes: r.TransferredBytes,
		CreatedAt:        parseTime(r.CreatedAt),
		FinishedAt:       parseTime(r.FinishedAt),
	}
	if err := jsonUnmarshal([]byte(r.Errors), &e.Errors); err != nil {
		return nil, fmt.Errorf("decode errors of %s: %w", r.ID, err)
	}
	if r.Fatal != "" {
		e.Fatal = &operation.ErrorEntry{}
		if err := jsonUnmarshal([]byte(r.Fatal), e.Fatal); err != nil {
			return nil, fmt.Errorf("decode fatal error of %s: %w", r.ID, err)
		}
	}
	return e, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func unlock(lock *flock.Flock) {
	if lock == nil || !lock.Locked() {
		return
	}
	if err := lock.Unlock(); err != nil {
		slog.Warn("journal unlock", "path", lock.Path(), "error", err)
	}
}
