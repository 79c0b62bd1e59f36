package report

import (
	"fmt"

	"github.com/hpipe/hpipe/internal/logger"
	"github.com/hpipe/hpipe/internal/scheduler"
)

// Printer streams task progress as it happens. It is wired into the
// scheduler as the event callback, so HandleEvent must stay cheap and must
// never call back into the scheduler.
type Printer struct {
	// Quiet suppresses per-task progress, leaving only the final summary
	Quiet bool
}

// HandleEvent prints one line per user-visible transition. Internal
// transitions (Pending to Ready) stay silent.
func (p *Printer) HandleEvent(ev scheduler.Event) {
	if p.Quiet {
		return
	}

	switch ev.To {
	case scheduler.StatusRunning:
		logger.User.Starting(ev.Task)
	case scheduler.StatusSucceeded:
		logger.User.Success(ev.Task)
	case scheduler.StatusSkipped:
		logger.User.Skipf("%s (%s)", ev.Task, ev.Reason)
	case scheduler.StatusFailed:
		logger.User.Error(ev.Task)
	case scheduler.StatusBlocked:
		logger.User.Warnf("%s (%s)", ev.Task, ev.Reason)
	}
}

// Print writes the final summary table to stdout
func Print(s *Summary) {
	fmt.Print(s.Render())
}
