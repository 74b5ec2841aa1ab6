package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores state and run history in Postgres, for
// deployments where multiple hosts run syncs against shared state.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tapsync_bookmarks (
	tap_id     TEXT NOT NULL,
	stream_id  TEXT NOT NULL,
	bookmark   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tap_id, stream_id)
);
CREATE TABLE IF NOT EXISTS tapsync_runs (
	id           TEXT PRIMARY KEY,
	tap_id       TEXT NOT NULL,
	target       TEXT NOT NULL,
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
`

// NewPostgresBackend connects to Postgres and ensures the state tables
// exist.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &IOError{Op: "connect", Err: err}
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, &IOError{Op: "migrate", Err: err}
	}
	return &PostgresBackend{pool: pool}, nil
}

// Load implements Backend.
func (b *PostgresBackend) Load(ctx context.Context, tapID string) (State, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT stream_id, bookmark FROM tapsync_bookmarks WHERE tap_id = $1`, tapID)
	if err != nil {
		return nil, &IOError{Op: "load", TapID: tapID, Err: err}
	}
	defer rows.Close()

	s := State{}
	for rows.Next() {
		var stream string
		var bookmark []byte
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

// MergeBookmark implements Backend. Per-tap serialization uses a
// transaction-scoped advisory lock on the tap identifier, so concurrent
// syncs of different taps never block each other.
func (b *PostgresBackend) MergeBookmark(ctx context.Context, tapID, streamID string, bookmark json.RawMessage) error {
	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, tapID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO tapsync_bookmarks (tap_id, stream_id, bookmark, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tap_id, stream_id)
			DO UPDATE SET bookmark = EXCLUDED.bookmark, updated_at = EXCLUDED.updated_at`,
			tapID, streamID, []byte(bookmark), time.Now().UTC())
		return err
	})
	if err != nil {
		return &IOError{Op: "merge", TapID: tapID, Err: err}
	}
	return nil
}

// Clear implements Backend.
func (b *PostgresBackend) Clear(ctx context.Context, tapID string) error {
	if _, err := b.pool.Exec(ctx,
		`DELETE FROM tapsync_bookmarks WHERE tap_id = $1`, tapID); err != nil {
		return &IOError{Op: "clear", TapID: tapID, Err: err}
	}
	return nil
}

// CreateRun implements Backend.
func (b *PostgresBackend) CreateRun(ctx context.Context, run Run) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO tapsync_runs (id, tap_id, target, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.TapID, run.Target, RunStatusRunning, run.StartedAt.UTC())
	if err != nil {
		return &IOError{Op: "create run", TapID: run.TapID, Err: err}
	}
	return nil
}

// CompleteRun implements Backend.
func (b *PostgresBackend) CompleteRun(ctx context.Context, runID, status, errorMsg string) error {
	_, err := b.pool.Exec(ctx, `
		UPDATE tapsync_runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		status, errorMsg, time.Now().UTC(), runID)
	if err != nil {
		return &IOError{Op: "complete run", Err: err}
	}
	return nil
}

// GetRuns implements Backend, newest first.
func (b *PostgresBackend) GetRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := b.pool.Query(ctx, `
		SELECT id, tap_id, target, status, error, started_at, completed_at
		FROM tapsync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, &IOError{Op: "history", Err: err}
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var completed *time.Time
		if err := rows.Scan(&r.ID, &r.TapID, &r.Target, &r.Status, &r.Error, &r.StartedAt, &completed); err != nil {
			return nil, &IOError{Op: "history", Err: err}
		}
		if completed != nil {
			r.CompletedAt = *completed
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &IOError{Op: "history", Err: err}
	}
	return runs, nil
}

// Close implements Backend.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

var _ Backend = (*PostgresBackend)(nil)
