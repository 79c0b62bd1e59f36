package staleness

import (
	"os"
	"time"
)

// ModTimePolicy compares modification times: outputs are current when the
// oldest output is newer than the newest input. Stateless, so Commit is a
// no-op.
type ModTimePolicy struct{}

// Name identifies the policy in logs
func (ModTimePolicy) Name() string { return "mtime" }

// OutputsCurrent reports whether every output is newer than every input. A
// missing input makes the outputs non-current rather than failing the run:
// the task's own action is the right place to complain about it.
func (ModTimePolicy) OutputsCurrent(inputs, outputs []string) (bool, error) {
	var oldestOutput time.Time
	for i, out := range outputs {
		stat, err := os.Stat(out)
		if err != nil {
			return false, err
		}
		if i == 0 || stat.ModTime().Before(oldestOutput) {
			oldestOutput = stat.ModTime()
		}
	}

	for _, in := range inputs {
		stat, err := os.Stat(in)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		if !stat.ModTime().Before(oldestOutput) {
			return false, nil
		}
	}
	return true, nil
}

// Commit is a no-op: the filesystem already carries the timestamps
func (ModTimePolicy) Commit(inputs, outputs []string) error {
	return nil
}
