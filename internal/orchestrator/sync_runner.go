package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/johndauphine/tapsync/internal/catalog"
	"github.com/johndauphine/tapsync/internal/config"
	"github.com/johndauphine/tapsync/internal/logging"
	"github.com/johndauphine/tapsync/internal/notify"
	"github.com/johndauphine/tapsync/internal/pipeline"
	"github.com/johndauphine/tapsync/internal/progress"
	"github.com/johndauphine/tapsync/internal/singer"
	"github.com/johndauphine/tapsync/internal/state"
	"github.com/johndauphine/tapsync/internal/tap"
	"github.com/johndauphine/tapsync/internal/target"
	"github.com/johndauphine/tapsync/internal/util"
)

// StreamError reports one stream's sync failure. Other streams in the
// run are unaffected.
type StreamError struct {
	Stream string
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Stream, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// SyncRunner executes sync runs one stream at a time.
type SyncRunner struct {
	config   *config.Config
	planner  *Planner
	state    state.Backend
	notifier *notify.Notifier
	pump     *pipeline.Pump
}

// NewSyncRunner creates a SyncRunner.
func NewSyncRunner(cfg *config.Config, backend state.Backend, notifier *notify.Notifier) *SyncRunner {
	return &SyncRunner{
		config:   cfg,
		planner:  NewPlanner(cfg),
		state:    backend,
		notifier: notifier,
		pump:     pipeline.New(pipeline.Config{}),
	}
}

// SyncOptions controls one sync run.
type SyncOptions struct {
	// Tap name, without the tap- prefix
	Tap string
	// Target name; empty uses the configured default
	Target string
	// Tables restricts the run to a subset of selected streams
	Tables []string
	// Rescan forces catalog rediscovery before planning
	Rescan bool
	// ShowProgress renders per-stream progress bars
	ShowProgress bool
}

// Run plans and syncs a tap. Every selected stream is attempted even
// when earlier streams fail; the error return is reserved for failures
// that prevent the run from starting at all.
func (r *SyncRunner) Run(ctx context.Context, opts SyncOptions) (*RunResult, error) {
	start := time.Now()
	targetName := opts.Target
	if targetName == "" {
		targetName = r.config.Sync.Target
	}

	planResult, err := r.planner.BuildPlan(ctx, opts.Tap, opts.Rescan)
	if err != nil {
		return nil, err
	}

	streams, err := selectStreams(planResult.Plan.IncludedStreams(), opts.Tables)
	if err != nil {
		return nil, err
	}

	if err := r.preflight(ctx, opts.Tap, targetName); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:    uuid.New().String(),
		Tap:      opts.Tap,
		Target:   targetName,
		Warnings: planResult.Warnings,
	}

	if err := r.state.CreateRun(ctx, state.Run{
		ID:        result.RunID,
		TapID:     opts.Tap,
		Target:    targetName,
		Status:    state.RunStatusRunning,
		StartedAt: start,
	}); err != nil {
		logging.Warn("Recording run start failed: %v", err)
	}
	if err := r.notifier.SyncStarted(result.RunID, opts.Tap, targetName, len(streams)); err != nil {
		logging.Warn("Start notification failed: %v", err)
	}

	cat, err := catalog.LoadFile(r.config.RawCatalogFile(opts.Tap))
	if err != nil {
		return nil, err
	}
	sel := planResult.Plan.Selection()

	prog := progress.New(len(streams), opts.ShowProgress)

	for _, stream := range streams {
		if ctx.Err() != nil {
			result.Duration = time.Since(start)
			r.finishRun(result, ctx.Err())
			return result, ctx.Err()
		}

		logging.Info("Syncing %s.%s to %s", opts.Tap, stream, targetName)
		prog.StartStream(stream)

		stats, err := r.syncStream(ctx, opts.Tap, targetName, stream, cat, sel[stream], prog)
		if err != nil {
			prog.StreamFailed()
			se := &StreamError{Stream: stream, Err: err}
			result.Failed = append(result.Failed, se)
			logging.Error("Stream %s failed: %v", stream, err)
			if nerr := r.notifier.StreamSyncFailed(result.RunID, stream, err); nerr != nil {
				logging.Warn("Failure notification failed: %v", nerr)
			}
			continue
		}

		prog.StreamComplete()
		result.Succeeded = append(result.Succeeded, stream)
		result.Records += stats.Records
	}

	prog.Finish()
	result.Duration = time.Since(start)
	r.finishRun(result, nil)

	switch {
	case result.Success():
		if err := r.notifier.SyncCompleted(result.RunID, result.Duration, len(result.Succeeded), result.Records); err != nil {
			logging.Warn("Completion notification failed: %v", err)
		}
	default:
		failed := make([]string, len(result.Failed))
		for i, f := range result.Failed {
			failed[i] = f.Stream
		}
		if err := r.notifier.SyncCompletedWithErrors(result.RunID, result.Duration, len(result.Succeeded), len(result.Failed), failed); err != nil {
			logging.Warn("Completion notification failed: %v", err)
		}
	}

	return result, nil
}

// syncStream runs one tap-to-target pipeline scoped to a single stream
// and merges its bookmark once both processes exit cleanly.
func (r *SyncRunner) syncStream(ctx context.Context, tapName, targetName, stream string, cat *catalog.Catalog, cols map[string]bool, prog *progress.Tracker) (*pipeline.Stats, error) {
	catalogFile, err := r.writeStreamCatalog(tapName, stream, cat, cols)
	if err != nil {
		return nil, err
	}

	stateFile, err := r.writeStreamState(ctx, tapName, stream)
	if err != nil {
		return nil, err
	}

	targetConfig, err := target.WriteStreamConfig(
		r.config.PluginConfigFile(target.CommandName(targetName)),
		tapName, stream, r.config.Sync.PipelineVersion,
	)
	if err != nil {
		return nil, err
	}

	tgt, err := target.Start(ctx, target.RunOptions{
		Target:     targetName,
		ConfigPath: targetConfig,
	})
	if err != nil {
		return nil, err
	}

	tp, err := tap.Start(ctx, tap.RunOptions{
		Tap:         tapName,
		ConfigPath:  r.config.PluginConfigFile(tap.CommandName(tapName)),
		CatalogPath: catalogFile,
		StatePath:   stateFile,
	})
	if err != nil {
		tgt.Input().Close()
		tgt.Wait()
		return nil, err
	}

	stats, pumpErr := r.pump.Run(ctx, stream, tp.Output(), tgt.Input(), prog)
	tgt.Input().Close()

	tapErr := tp.Wait()
	tgtErr := tgt.Wait()

	if pumpErr != nil {
		return stats, pumpErr
	}
	if tapErr != nil {
		return stats, tapErr
	}
	if tgtErr != nil {
		return stats, tgtErr
	}

	if err := r.mergeStreamState(tapName, stream, tgt.StateOutput()); err != nil {
		return stats, err
	}
	return stats, nil
}

// writeStreamCatalog writes the single-stream catalog the tap will be
// invoked with, carrying the plan's column selection.
func (r *SyncRunner) writeStreamCatalog(tapName, stream string, cat *catalog.Catalog, cols map[string]bool) (string, error) {
	doc, err := cat.SingleStream(stream, cols)
	if err != nil {
		return "", err
	}
	path := r.config.StreamCatalogFile(tapName, stream)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating catalog dir: %w", err)
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return "", fmt.Errorf("writing stream catalog: %w", err)
	}
	return path, nil
}

// writeStreamState materializes the stream's saved bookmark as a state
// file for the tap. Returns an empty path on first run, which means a
// full extract.
func (r *SyncRunner) writeStreamState(ctx context.Context, tapName, stream string) (string, error) {
	st, err := r.state.Load(ctx, tapName)
	if err != nil {
		return "", err
	}
	bookmark, ok := st[stream]
	if !ok {
		return "", nil
	}

	value, err := singer.WrapBookmark(stream, bookmark)
	if err != nil {
		return "", err
	}
	path := filepath.Join(r.config.CatalogDir(tapName), tapName+"-"+stream+"-state.json")
	if err := os.WriteFile(path, value, 0o600); err != nil {
		return "", fmt.Errorf("writing stream state: %w", err)
	}
	return path, nil
}

// mergeStreamState extracts the stream's bookmark from the target's
// state output and persists it before the next stream starts. The merge
// runs on its own deadline: once the target has emitted state for a
// fully-received stream, an interrupted run must still keep it.
func (r *SyncRunner) mergeStreamState(tapName, stream string, raw []byte) error {
	if len(raw) == 0 {
		logging.Debug("Target emitted no state for %s; bookmark unchanged", stream)
		return nil
	}
	aggregated, err := singer.AggregateState(string(raw))
	if err != nil {
		return fmt.Errorf("aggregating target state: %w", err)
	}
	bookmark, ok := singer.StreamBookmark(json.RawMessage(aggregated), stream)
	if !ok {
		logging.Debug("No bookmark for %s in target state; bookmark unchanged", stream)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.state.MergeBookmark(ctx, tapName, stream, bookmark)
}

// finishRun records the run outcome in run history.
func (r *SyncRunner) finishRun(result *RunResult, runErr error) {
	status := result.Status()
	errMsg := ""
	if runErr != nil {
		status = state.RunStatusFailed
		errMsg = runErr.Error()
	} else if len(result.Failed) > 0 {
		errMsg = result.Failed[0].Error()
	}

	// Run completion is recorded even when the run context was
	// cancelled, so history reflects the abort.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.state.CompleteRun(ctx, result.RunID, status, errMsg); err != nil {
		logging.Warn("Recording run completion failed: %v", err)
	}
}

// selectStreams applies the --tables subset to the plan's selected
// streams. Requesting a stream the plan does not select is an error.
func selectStreams(included []string, tables []string) ([]string, error) {
	if len(tables) == 0 {
		return included, nil
	}
	var out []string
	for _, t := range tables {
		if !util.ContainsFold(included, t) {
			return nil, fmt.Errorf("table %q is not selected by the plan", t)
		}
		for _, s := range included {
			if util.ContainsFold([]string{s}, t) {
				out = append(out, s)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no selected streams match the requested tables")
	}
	return out, nil
}
