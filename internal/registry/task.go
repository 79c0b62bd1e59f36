package registry

import (
	"context"
	"io"
	"os"
)

// Action is a unit of work a task performs. Built-in kinds (shell command,
// Go function) and user-defined kinds share this one dispatch path.
type Action interface {
	// Run performs the work. A non-nil error marks the task Failed and
	// blocks its transitive dependents.
	Run(ctx context.Context, ec *ExecContext) error
}

// ExecContext carries per-run execution settings into actions. One value is
// derived per task from the run configuration; actions must not retain it.
type ExecContext struct {
	// Dir is the working directory for the action, empty for the process cwd
	Dir string

	// Env is extra KEY=VALUE environment applied on top of the process env
	Env map[string]string

	// DryRun echoes commands without executing anything
	DryRun bool

	// Echo prints each command before running it
	Echo bool

	Stdout io.Writer
	Stderr io.Writer
}

// NewExecContext returns an ExecContext wired to the process streams with
// echo enabled, matching the default interactive behavior.
func NewExecContext() *ExecContext {
	return &ExecContext{
		Env:    make(map[string]string),
		Echo:   true,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Task is a named unit of work with declared dependencies and optional
// inputs/outputs. Tasks are immutable once the run begins.
type Task struct {
	// Name uniquely identifies the task within a Registry
	Name string

	// Description is an optional human-readable summary for --list output
	Description string

	// Action is the opaque executable unit
	Action Action

	// DependsOn names tasks that must finalize before this one runs
	DependsOn []string

	// Inputs are declared input paths consulted by the staleness evaluator
	Inputs []string

	// Outputs are declared output paths. A task with no outputs is always
	// considered stale and re-runs every invocation.
	Outputs []string

	// Dir is an optional working directory for the action
	Dir string

	// Env is extra environment for the action
	Env map[string]string

	// Programs are executables that must be present on PATH before the
	// action runs
	Programs []string
}
