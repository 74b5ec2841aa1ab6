package progress

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker tracks sync progress across streams. Record counts are not
// known up front, so each stream renders as a spinner with a running
// record count.
type Tracker struct {
	bar       *progressbar.ProgressBar
	total     atomic.Int64
	streams   int
	completed int
	startTime time.Time
	enabled   bool
}

// New creates a tracker for a run covering the given number of streams.
// When enabled is false the tracker only accumulates counters.
func New(streams int, enabled bool) *Tracker {
	return &Tracker{
		streams:   streams,
		startTime: time.Now(),
		enabled:   enabled,
	}
}

// StartStream begins rendering progress for one stream.
func (t *Tracker) StartStream(name string) {
	if !t.enabled {
		return
	}
	t.bar = progressbar.NewOptions64(
		-1,
		progressbar.OptionSetDescription(fmt.Sprintf("[%d/%d] %s", t.completed+1, t.streams, name)),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionSpinnerType(14),
	)
}

// Add increments the record counter for the active stream.
func (t *Tracker) Add(n int64) {
	t.total.Add(n)
	if t.bar != nil {
		t.bar.Add64(n)
	}
}

// Total returns the records counted so far across all streams.
func (t *Tracker) Total() int64 {
	return t.total.Load()
}

// StreamComplete finishes the active stream's bar.
func (t *Tracker) StreamComplete() {
	t.completed++
	if t.bar != nil {
		t.bar.Finish()
		t.bar = nil
		fmt.Println()
	}
}

// StreamFailed abandons the active stream's bar without marking it done.
func (t *Tracker) StreamFailed() {
	t.completed++
	if t.bar != nil {
		t.bar.Exit()
		t.bar = nil
		fmt.Println()
	}
}

// Finish prints the run summary.
func (t *Tracker) Finish() {
	if !t.enabled {
		return
	}
	elapsed := time.Since(t.startTime)
	recordsPerSec := float64(t.total.Load()) / elapsed.Seconds()

	fmt.Printf("Synced %d records in %s (%.0f records/sec)\n",
		t.total.Load(), elapsed.Round(time.Second), recordsPerSec)
}
