package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// DiscoverOptions configures a catalog discovery invocation.
type DiscoverOptions struct {
	// Tap name, with or without the tap- prefix
	Tap string
	// ConfigPath is the tap's JSON config file
	ConfigPath string
	// Options to pass through to the tap
	Options []string
}

func (opts *DiscoverOptions) ToArgs() []string {
	args := []string{"--config", opts.ConfigPath, "--discover"}
	return append(args, opts.Options...)
}

// Discover runs the tap in discovery mode and returns the raw catalog
// JSON it prints to stdout.
func Discover(ctx context.Context, opts DiscoverOptions) ([]byte, error) {
	cmd := exec.CommandContext(ctx, CommandName(opts.Tap), opts.ToArgs()...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("running %s --discover: %w: %s", CommandName(opts.Tap), err, stderr.String())
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("%s --discover produced invalid catalog JSON", CommandName(opts.Tap))
	}
	return out, nil
}
