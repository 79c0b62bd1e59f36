package action

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hpipe/hpipe/internal/errors"
	"github.com/hpipe/hpipe/internal/registry"
)

// RunCommand executes an argv-style command without a shell, honoring the
// execution context's echo and dry-run settings. Used by multi-step actions
// that build their command lines programmatically.
func RunCommand(ctx context.Context, ec *registry.ExecContext, taskName string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("task %s: empty command", taskName)
	}

	display := strings.Join(argv, " ")
	if ec.Echo || ec.DryRun {
		fmt.Fprintf(ec.Stdout, "> %s\n", display)
	}
	if ec.DryRun {
		return nil
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = ec.Dir
	cmd.Env = mergedEnviron(ec.Env)
	cmd.Stdout = ec.Stdout
	cmd.Stderr = ec.Stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return errors.NewActionError(taskName, display, exitCode, err)
	}
	return nil
}
