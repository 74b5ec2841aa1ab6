package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores one JSON state document per tap under a directory.
// It is the zero-dependency default; run history is not supported.
type FileBackend struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileBackend creates a file-based state backend rooted at dir.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IOError{Op: "init", Err: err}
	}
	return &FileBackend{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// tapLock returns the per-tap mutex, creating it on first use. Writes are
// serialized per tap; different taps proceed independently.
func (b *FileBackend) tapLock(tapID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[tapID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[tapID] = l
	}
	return l
}

func (b *FileBackend) path(tapID string) string {
	return filepath.Join(b.dir, tapID+"-state.json")
}

// Load implements Backend.
func (b *FileBackend) Load(_ context.Context, tapID string) (State, error) {
	b.tapLock(tapID).Lock()
	defer b.tapLock(tapID).Unlock()
	return b.read(tapID)
}

func (b *FileBackend) read(tapID string) (State, error) {
	data, err := os.ReadFile(b.path(tapID))
	if os.IsNotExist(err) {
		// First run for this tap.
		return State{}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "load", TapID: tapID, Err: err}
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &IOError{Op: "load", TapID: tapID, Err: fmt.Errorf("corrupt state file: %w", err)}
	}
	return s, nil
}

// MergeBookmark implements Backend. The updated document is written to a
// temp file and renamed into place so a crash never leaves a partial
// bookmark on disk.
func (b *FileBackend) MergeBookmark(_ context.Context, tapID, streamID string, bookmark json.RawMessage) error {
	b.tapLock(tapID).Lock()
	defer b.tapLock(tapID).Unlock()

	s, err := b.read(tapID)
	if err != nil {
		return err
	}
	s[streamID] = bookmark

	// Compact encoding keeps stored bookmark bytes verbatim; indenting
	// would rewrite the nested raw messages.
	data, err := json.Marshal(s)
	if err != nil {
		return &IOError{Op: "merge", TapID: tapID, Err: err}
	}
	tmp := b.path(tapID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &IOError{Op: "merge", TapID: tapID, Err: err}
	}
	if err := os.Rename(tmp, b.path(tapID)); err != nil {
		return &IOError{Op: "merge", TapID: tapID, Err: err}
	}
	return nil
}

// Clear implements Backend.
func (b *FileBackend) Clear(_ context.Context, tapID string) error {
	b.tapLock(tapID).Lock()
	defer b.tapLock(tapID).Unlock()

	err := os.Remove(b.path(tapID))
	if err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "clear", TapID: tapID, Err: err}
	}
	return nil
}

// CreateRun is a no-op; the file backend keeps no history.
func (b *FileBackend) CreateRun(context.Context, Run) error { return nil }

// CompleteRun is a no-op; the file backend keeps no history.
func (b *FileBackend) CompleteRun(context.Context, string, string, string) error { return nil }

// GetRuns returns no history.
func (b *FileBackend) GetRuns(context.Context, int) ([]Run, error) { return nil, nil }

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

var _ Backend = (*FileBackend)(nil)
