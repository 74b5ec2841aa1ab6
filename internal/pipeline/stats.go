package pipeline

import (
	"encoding/json"
	"time"
)

// Stats captures throughput for one stream sync.
type Stats struct {
	// Records is the number of RECORD messages forwarded.
	Records int64

	// States is the number of STATE messages seen from the tap.
	States int64

	// Duration is total pump time.
	Duration time.Duration

	// LastTapState is the value of the last STATE message the tap
	// emitted, kept for diagnostics. The authoritative bookmark is
	// whatever the target flushes on its own stdout.
	LastTapState json.RawMessage
}

// RecordsPerSecond returns the forwarding rate.
func (s *Stats) RecordsPerSecond() float64 {
	if s.Duration.Seconds() == 0 {
		return 0
	}
	return float64(s.Records) / s.Duration.Seconds()
}
