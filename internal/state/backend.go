// Package state persists per-tap replication state: the bookmark each
// stream has reached, merged incrementally as streams complete so a crash
// mid-run never loses finished work. Backends serialize writes per tap
// identifier; syncs of different taps never contend.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// State maps stream name to its opaque replication bookmark, exactly as
// emitted by the tap (a timestamp, an offset — the engine never looks
// inside).
type State map[string]json.RawMessage

// Clone returns a deep-enough copy safe to mutate independently.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Backend is the persistence interface for replication state.
// Implementations include file-based (minimal), SQLite (full featured)
// and Postgres (for deployments sharing state across hosts).
type Backend interface {
	// Load returns the last known state for a tap, or an empty state on
	// first run.
	Load(ctx context.Context, tapID string) (State, error)

	// MergeBookmark atomically updates exactly one stream's bookmark
	// without disturbing others. Called once per completed stream during
	// a run, not only at end-of-run.
	MergeBookmark(ctx context.Context, tapID, streamID string, bookmark json.RawMessage) error

	// Clear removes all state for a tap. Explicit user action only
	// (full re-sync); state is never deleted automatically.
	Clear(ctx context.Context, tapID string) error

	// Run history (optional - file backend returns empty/no-op)
	CreateRun(ctx context.Context, run Run) error
	CompleteRun(ctx context.Context, runID, status, errorMsg string) error
	GetRuns(ctx context.Context, limit int) ([]Run, error)

	// Lifecycle
	Close() error
}

// Run records one sync invocation for the history command.
type Run struct {
	ID          string
	TapID       string
	Target      string
	Status      string
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial_failure"
	RunStatusFailed  = "failed"
)

// IOError reports that the state store could not be read or written.
// Fatal: continuing without durable state risks silent data loss, so the
// orchestrator halts rather than proceed blind.
type IOError struct {
	Op    string
	TapID string
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("state store %s for tap %q: %v", e.Op, e.TapID, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
