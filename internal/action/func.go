package action

import (
	"context"

	"github.com/hpipe/hpipe/internal/registry"
)

// FuncAction adapts an in-process function to the task action interface.
// Used for engine-internal tasks (stage barriers, fixture setup in tests)
// that have no shell command.
type FuncAction struct {
	// Fn is invoked when the task runs; nil means the task is a pure
	// synchronization point and always succeeds
	Fn func(ctx context.Context, ec *registry.ExecContext) error
}

// Run invokes the wrapped function. Dry-run short-circuits so functions
// with side effects stay inert during a preview.
func (a *FuncAction) Run(ctx context.Context, ec *registry.ExecContext) error {
	if a.Fn == nil || ec.DryRun {
		return nil
	}
	return a.Fn(ctx, ec)
}
