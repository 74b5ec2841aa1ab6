package orchestrator

import (
	"fmt"
	"io"
	"time"

	"github.com/johndauphine/tapsync/internal/plan"
	"github.com/johndauphine/tapsync/internal/state"
)

// RunResult is the outcome of a sync run.
type RunResult struct {
	RunID    string
	Tap      string
	Target   string
	Duration time.Duration

	Succeeded []string
	Failed    []*StreamError
	Records   int64
	Warnings  []plan.Warning
}

// Success reports whether every attempted stream synced.
func (r *RunResult) Success() bool {
	return len(r.Failed) == 0
}

// Status maps the outcome onto a run-history status.
func (r *RunResult) Status() string {
	switch {
	case len(r.Failed) == 0:
		return state.RunStatusSuccess
	case len(r.Succeeded) == 0:
		return state.RunStatusFailed
	default:
		return state.RunStatusPartial
	}
}

// WriteReport prints the per-stream run report.
func (r *RunResult) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "\nSync run %s: %s -> %s\n", r.RunID, r.Tap, r.Target)
	fmt.Fprintf(w, "Duration: %s, records: %d\n", r.Duration.Round(time.Second), r.Records)

	for _, s := range r.Succeeded {
		fmt.Fprintf(w, "  ok      %s\n", s)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed  %s: %v\n", f.Stream, f.Err)
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(w, "Warnings:\n")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  %s\n", warn)
		}
	}

	if r.Success() {
		fmt.Fprintf(w, "Result: success (%d streams)\n", len(r.Succeeded))
	} else {
		fmt.Fprintf(w, "Result: %s (%d ok, %d failed)\n", r.Status(), len(r.Succeeded), len(r.Failed))
	}
}
