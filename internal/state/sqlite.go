package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores state and run history in an embedded SQLite
// database. Suitable for single-host deployments that want history.
type SQLiteBackend struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	tap_id     TEXT NOT NULL,
	stream_id  TEXT NOT NULL,
	bookmark   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (tap_id, stream_id)
);
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	tap_id       TEXT NOT NULL,
	target       TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
`

// NewSQLiteBackend opens (creating if needed) a SQLite state database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &IOError{Op: "open", Err: err}
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent tap syncs.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &IOError{Op: "migrate", Err: err}
	}
	return &SQLiteBackend{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

func (b *SQLiteBackend) tapLock(tapID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[tapID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[tapID] = l
	}
	return l
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, tapID string) (State, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT stream_id, bookmark FROM bookmarks WHERE tap_id = ?`, tapID)
	if err != nil {
		return nil, &IOError{Op: "load", TapID: tapID, Err: err}
	}
	defer rows.Close()

	s := State{}
	for rows.Next() {
		var stream, bookmark string
		if err := rows.Scan(&stream, &bookmark); err != nil {
			return nil, &IOError{Op: "load", TapID: tapID, Err: err}
		}
		s[stream] = json.RawMessage(bookmark)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "load", TapID: tapID, Err: err}
	}
	return s, nil
}

// MergeBookmark implements Backend.
func (b *SQLiteBackend) MergeBookmark(ctx context.Context, tapID, streamID string, bookmark json.RawMessage) error {
	b.tapLock(tapID).Lock()
	defer b.tapLock(tapID).Unlock()

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO bookmarks (tap_id, stream_id, bookmark, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tap_id, stream_id)
		DO UPDATE SET bookmark = excluded.bookmark, updated_at = excluded.updated_at`,
		tapID, streamID, string(bookmark), time.Now().UTC())
	if err != nil {
		return &IOError{Op: "merge", TapID: tapID, Err: err}
	}
	return nil
}

// Clear implements Backend.
func (b *SQLiteBackend) Clear(ctx context.Context, tapID string) error {
	b.tapLock(tapID).Lock()
	defer b.tapLock(tapID).Unlock()

	if _, err := b.db.ExecContext(ctx, `DELETE FROM bookmarks WHERE tap_id = ?`, tapID); err != nil {
		return &IOError{Op: "clear", TapID: tapID, Err: err}
	}
	return nil
}

// CreateRun implements Backend.
func (b *SQLiteBackend) CreateRun(ctx context.Context, run Run) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO runs (id, tap_id, target, status, error, started_at)
		VALUES (?, ?, ?, ?, '', ?)`,
		run.ID, run.TapID, run.Target, RunStatusRunning, run.StartedAt.UTC())
	if err != nil {
		return &IOError{Op: "create run", TapID: run.TapID, Err: err}
	}
	return nil
}

// CompleteRun implements Backend.
func (b *SQLiteBackend) CompleteRun(ctx context.Context, runID, status, errorMsg string) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		status, errorMsg, time.Now().UTC(), runID)
	if err != nil {
		return &IOError{Op: "complete run", Err: err}
	}
	return nil
}

// GetRuns implements Backend, newest first.
func (b *SQLiteBackend) GetRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, tap_id, target, status, error, started_at, completed_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, &IOError{Op: "history", Err: err}
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.TapID, &r.Target, &r.Status, &r.Error, &r.StartedAt, &completed); err != nil {
			return nil, &IOError{Op: "history", Err: err}
		}
		if completed.Valid {
			r.CompletedAt = completed.Time
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "history", Err: err}
	}
	return runs, nil
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("closing state database: %w", err)
	}
	return nil
}

var _ Backend = (*SQLiteBackend)(nil)
