package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/johndauphine/tapsync/internal/tap"
	"github.com/johndauphine/tapsync/internal/target"
)

// preflight verifies the run can start: both plugin executables must
// resolve on PATH and the state backend must answer a read. Failures
// here abort the run before any stream is attempted.
func (r *SyncRunner) preflight(ctx context.Context, tapName, targetName string) error {
	tapCmd := tap.CommandName(tapName)
	if _, err := exec.LookPath(tapCmd); err != nil {
		return fmt.Errorf("tap executable %q not found: %w", tapCmd, err)
	}

	targetCmd := target.CommandName(targetName)
	if _, err := exec.LookPath(targetCmd); err != nil {
		return fmt.Errorf("target executable %q not found: %w", targetCmd, err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := r.state.Load(checkCtx, tapName); err != nil {
		return fmt.Errorf("state backend check failed: %w", err)
	}

	return nil
}
