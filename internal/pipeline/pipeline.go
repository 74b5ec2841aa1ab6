// Package pipeline pumps Singer messages from a tap's output into a
// target's input, counting records and tracking state along the way.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/johndauphine/tapsync/internal/logging"
	"github.com/johndauphine/tapsync/internal/progress"
	"github.com/johndauphine/tapsync/internal/singer"
)

// Config contains pump execution configuration.
type Config struct {
	// BufferSize is the number of decoded messages buffered between
	// the reader and the writer.
	BufferSize int
}

// Pump moves messages from a tap to a target.
type Pump struct {
	config Config
}

// New creates a Pump with the given configuration.
func New(cfg Config) *Pump {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &Pump{config: cfg}
}

type decoded struct {
	msg *singer.Message
	err error
}

// Run forwards all messages from src to dst until src is exhausted,
// returning statistics on completion. Messages are decoded only to be
// classified; the original bytes are forwarded untouched.
func (p *Pump) Run(ctx context.Context, stream string, src io.Reader, dst io.Writer, prog *progress.Tracker) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	// done releases the reader goroutine when Run returns before the
	// source is exhausted, so a cancelled pump never strands it on a
	// full channel.
	done := make(chan struct{})
	defer close(done)

	msgChan := make(chan decoded, p.config.BufferSize)
	go func() {
		defer close(msgChan)
		dec := singer.NewDecoder(src)
		for {
			msg, err := dec.Decode()
			if err == io.EOF {
				return
			}
			select {
			case msgChan <- decoded{msg: msg, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	enc := singer.NewEncoder(dst)
	for {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		select {
		case <-ctx.Done():
			stats.Duration = time.Since(start)
			return stats, ctx.Err()
		case d, ok := <-msgChan:
			if !ok {
				stats.Duration = time.Since(start)
				logging.Debug("Pump %s: %d records, %d states in %s",
					stream, stats.Records, stats.States, stats.Duration.Round(time.Millisecond))
				return stats, nil
			}
			if d.err != nil {
				stats.Duration = time.Since(start)
				return stats, fmt.Errorf("decoding tap output: %w", d.err)
			}

			switch d.msg.Type {
			case singer.TypeRecord:
				stats.Records++
				if prog != nil {
					prog.Add(1)
				}
			case singer.TypeState:
				stats.States++
				stats.LastTapState = d.msg.Value
			}

			if err := enc.Encode(d.msg); err != nil {
				stats.Duration = time.Since(start)
				return stats, fmt.Errorf("writing to target: %w", err)
			}
		}
	}
}
