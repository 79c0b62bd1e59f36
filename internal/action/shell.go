// Package action provides the built-in task action implementations: shell
// commands and in-process functions.
package action

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/hpipe/hpipe/internal/errors"
	"github.com/hpipe/hpipe/internal/logger"
	"github.com/hpipe/hpipe/internal/registry"
)

// ShellAction runs a command line through `sh -c`. The command inherits the
// process environment with the execution context's variables layered on top.
type ShellAction struct {
	// TaskName is the owning task, used in error reports
	TaskName string

	// Command is the shell command line
	Command string

	// Programs lists executables that must be on PATH before the command
	// runs. Checked up front so a long pipeline fails early with a clear
	// message instead of half-way through.
	Programs []string
}

// Run executes the command. In dry-run mode the command is echoed and
// reported as successful without executing.
func (a *ShellAction) Run(ctx context.Context, ec *registry.ExecContext) error {
	if err := checkPrograms(a.TaskName, a.Programs); err != nil {
		return err
	}

	if ec.Echo || ec.DryRun {
		fmt.Fprintf(ec.Stdout, "> %s\n", a.Command)
	}
	if ec.DryRun {
		return nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
	cmd.Dir = ec.Dir
	cmd.Env = mergedEnviron(ec.Env)
	cmd.Stdout = ec.Stdout
	cmd.Stderr = ec.Stderr

	logger.Op.WithFields(map[string]interface{}{
		"task":    a.TaskName,
		"command": a.Command,
		"dir":     ec.Dir,
	}).Debug("Executing shell command")

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return errors.NewActionError(a.TaskName, a.Command, exitCode, err)
	}
	return nil
}

// checkPrograms verifies every required executable resolves on PATH
func checkPrograms(task string, programs []string) error {
	var missing []string
	for _, prog := range programs {
		if _, err := exec.LookPath(prog); err != nil {
			missing = append(missing, prog)
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingProgramsError(task, missing, programs)
	}
	return nil
}

// mergedEnviron layers extra variables over the process environment. Sorted
// for a stable environment block.
func mergedEnviron(extra map[string]string) []string {
	if len(extra) == 0 {
		return os.Environ()
	}
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
