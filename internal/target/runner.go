// Package target runs Singer target executables and prepares their
// per-stream configuration. Targets are external commands named
// target-<name> that consume messages on stdin and emit state JSON on
// stdout.
package target

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/johndauphine/tapsync/internal/logging"
)

const stderrTailLines = 20

// CommandName returns the executable name for a target. Names already
// carrying the target- prefix are used as-is.
func CommandName(name string) string {
	if strings.HasPrefix(name, "target-") {
		return name
	}
	return "target-" + name
}

// RunOptions configures a target invocation.
type RunOptions struct {
	// Target name, with or without the target- prefix
	Target string
	// ConfigPath is the target's JSON config file
	ConfigPath string
	// Options to pass through to the target
	Options []string
}

func (opts *RunOptions) ToArgs() []string {
	args := []string{"--config", opts.ConfigPath}
	return append(args, opts.Options...)
}

// Process is a running target. Callers write messages to Input, close
// it, then call Wait and read the emitted state from StateOutput.
type Process struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout bytes.Buffer

	mu   sync.Mutex
	tail []string
	done chan struct{}
}

// Start launches the target. Target log output on stderr is forwarded
// to the debug log.
func Start(ctx context.Context, opts RunOptions) (*Process, error) {
	name := CommandName(opts.Target)
	cmd := exec.CommandContext(ctx, name, opts.ToArgs()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening %s stdin: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening %s stderr: %w", name, err)
	}

	p := &Process{
		name:  name,
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	cmd.Stdout = &p.stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}
	go p.drainStderr(stderr)
	return p, nil
}

// Input is the target's message sink. Close it to signal end of input.
func (p *Process) Input() io.WriteCloser {
	return p.stdin
}

// Wait blocks until the target exits. A non-zero exit wraps the last
// stderr lines into the error.
func (p *Process) Wait() error {
	// Stderr must be fully drained before Wait closes the pipes.
	<-p.done
	err := p.cmd.Wait()
	if err != nil {
		p.mu.Lock()
		tail := strings.Join(p.tail, "\n")
		p.mu.Unlock()
		if tail != "" {
			return fmt.Errorf("%s: %w: %s", p.name, err, tail)
		}
		return fmt.Errorf("%s: %w", p.name, err)
	}
	return nil
}

// StateOutput returns everything the target wrote to stdout. Only
// valid after Wait returns.
func (p *Process) StateOutput() []byte {
	return p.stdout.Bytes()
}

func (p *Process) drainStderr(r io.Reader) {
	defer close(p.done)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		logging.Debug("%s: %s", p.name, line)
		p.mu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[1:]
		}
		p.mu.Unlock()
	}
}
