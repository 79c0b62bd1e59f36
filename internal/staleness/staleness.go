// Package staleness decides whether a task's declared outputs are current
// with respect to its declared inputs. The comparison strategy is a
// pluggable policy: modification times by default, content hashes when
// exact change tracking matters more than speed.
package staleness

import (
	"fmt"
	"os"

	"github.com/hpipe/hpipe/internal/registry"
)

// Policy compares declared inputs against declared outputs. Implementations
// must be pure functions of the current filesystem state plus their own
// committed records.
type Policy interface {
	// Name identifies the policy in logs
	Name() string

	// OutputsCurrent reports whether the outputs are up to date with the
	// inputs. It is only consulted when every output exists.
	OutputsCurrent(inputs, outputs []string) (bool, error)

	// Commit records the input state after a successful run so the next
	// invocation can compare against it. A no-op for stateless policies.
	Commit(inputs, outputs []string) error
}

// Evaluator applies the staleness rules for one run. It is queried lazily,
// once per task, immediately before that task would otherwise run.
type Evaluator struct {
	policy Policy
}

// NewEvaluator creates an evaluator with the given policy, defaulting to
// modification-time comparison.
func NewEvaluator(policy Policy) *Evaluator {
	if policy == nil {
		policy = ModTimePolicy{}
	}
	return &Evaluator{policy: policy}
}

// Policy returns the active comparison policy
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// IsStale reports whether the task must re-run. depRebuilt is true when any
// dependency ran (rather than being skipped) this invocation: a rebuilt
// dependency always forces a rebuild regardless of timestamps. The returned
// reason explains the decision for reporting.
func (e *Evaluator) IsStale(t *registry.Task, depRebuilt bool) (bool, string, error) {
	// Tasks with no declared outputs model pure actions (test, lint) with
	// no cacheable artifact; they always run.
	if len(t.Outputs) == 0 {
		return true, "no declared outputs", nil
	}

	if depRebuilt {
		return true, "dependency was rebuilt", nil
	}

	for _, out := range t.Outputs {
		if _, err := os.Stat(out); err != nil {
			if os.IsNotExist(err) {
				return true, fmt.Sprintf("output %s is missing", out), nil
			}
			return true, "", err
		}
	}

	current, err := e.policy.OutputsCurrent(t.Inputs, t.Outputs)
	if err != nil {
		return true, "", err
	}
	if !current {
		return true, fmt.Sprintf("inputs newer than outputs (%s)", e.policy.Name()), nil
	}
	return false, "outputs up to date", nil
}

// Commit records the task's input state after a successful run
func (e *Evaluator) Commit(t *registry.Task) error {
	if len(t.Outputs) == 0 {
		return nil
	}
	return e.policy.Commit(t.Inputs, t.Outputs)
}
