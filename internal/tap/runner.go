package tap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/johndauphine/tapsync/internal/logging"
)

const stderrTailLines = 20

// RunOptions configures a sync-mode tap invocation.
type RunOptions struct {
	// Tap name, with or without the tap- prefix
	Tap string
	// ConfigPath is the tap's JSON config file
	ConfigPath string
	// CatalogPath is the selected catalog to extract
	CatalogPath string
	// StatePath resumes from a bookmark file; empty means full extract
	StatePath string
	// Options to pass through to the tap
	Options []string
}

func (opts *RunOptions) ToArgs() []string {
	args := []string{"--config", opts.ConfigPath, "--catalog", opts.CatalogPath}
	if opts.StatePath != "" {
		args = append(args, "--state", opts.StatePath)
	}
	return append(args, opts.Options...)
}

// Process is a running tap. Messages arrive on Output; callers must
// drain it and then call Wait.
type Process struct {
	name   string
	cmd    *exec.Cmd
	stdout io.ReadCloser

	mu   sync.Mutex
	tail []string
	done chan struct{}
}

// Start launches the tap in sync mode. Tap log output on stderr is
// forwarded to the debug log.
func Start(ctx context.Context, opts RunOptions) (*Process, error) {
	name := CommandName(opts.Tap)
	cmd := exec.CommandContext(ctx, name, opts.ToArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening %s stdout: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening %s stderr: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}

	p := &Process{
		name:   name,
		cmd:    cmd,
		stdout: stdout,
		done:   make(chan struct{}),
	}
	go p.drainStderr(stderr)
	return p, nil
}

// Output is the tap's message stream.
func (p *Process) Output() io.Reader {
	return p.stdout
}

// Wait blocks until the tap exits. A non-zero exit wraps the last
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

// Kill terminates the tap without waiting for it to finish.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
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
