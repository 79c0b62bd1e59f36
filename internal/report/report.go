// Package report turns a finished run into user-facing output: a grouped
// summary, a rendered table and the process exit code.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/hpipe/hpipe/internal/scheduler"
)

// Process exit codes. Configuration problems (bad file, unknown task,
// dependency cycle) are distinguished from runtime failures so callers can
// script against them.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitConfig = 2
)

// Summary groups the records of one run by terminal status. Each group is
// sorted by task name.
type Summary struct {
	// Failed holds tasks whose action returned an error
	Failed []*scheduler.Record

	// Blocked holds tasks that never started because a dependency failed
	// or the run was cancelled
	Blocked []*scheduler.Record

	// Ran holds tasks whose action completed successfully
	Ran []*scheduler.Record

	// Skipped holds tasks whose outputs were already up to date
	Skipped []*scheduler.Record

	// Duration is the wall time of the run
	Duration time.Duration

	// ExitCode is the process exit code the run maps to
	ExitCode int
}

// Summarize groups and sorts the run's records
func Summarize(res *scheduler.Result) *Summary {
	s := &Summary{Duration: res.Duration, ExitCode: ExitOK}

	for _, rec := range res.Records {
		switch rec.Status {
		case scheduler.StatusFailed:
			s.Failed = append(s.Failed, rec)
		case scheduler.StatusBlocked:
			s.Blocked = append(s.Blocked, rec)
		case scheduler.StatusSucceeded:
			s.Ran = append(s.Ran, rec)
		case scheduler.StatusSkipped:
			s.Skipped = append(s.Skipped, rec)
		}
	}

	for _, group := range [][]*scheduler.Record{s.Failed, s.Blocked, s.Ran, s.Skipped} {
		sort.Slice(group, func(i, j int) bool { return group[i].Task < group[j].Task })
	}

	if !res.Success {
		s.ExitCode = ExitFailed
	}
	return s
}

// Total returns the number of tasks the run visited
func (s *Summary) Total() int {
	return len(s.Failed) + len(s.Blocked) + len(s.Ran) + len(s.Skipped)
}

// Counts renders a one-line tally, e.g. "2 ran, 1 skipped, 1 failed"
func (s *Summary) Counts() string {
	parts := make([]string, 0, 4)
	if n := len(s.Ran); n > 0 {
		parts = append(parts, fmt.Sprintf("%d ran", n))
	}
	if n := len(s.Skipped); n > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", n))
	}
	if n := len(s.Failed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}
	if n := len(s.Blocked); n > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", n))
	}
	if len(parts) == 0 {
		return "nothing to do"
	}
	return strings.Join(parts, ", ")
}

// Render formats the summary as a table, failures first so they are the
// first thing a reader sees.
func (s *Summary) Render() string {
	tbl := newTable([]string{"TASK", "STATUS", "DURATION", "DETAIL"})

	add := func(recs []*scheduler.Record, status string, paint *color.Color) {
		for _, rec := range recs {
			detail := rec.Reason
			if rec.Err != nil {
				detail = rec.Err.Error()
			}
			tbl.addRow([]string{rec.Task, status, formatDuration(rec.Duration), detail}, paint)
		}
	}

	add(s.Failed, "FAILED", color.New(color.FgRed, color.Bold))
	add(s.Blocked, "BLOCKED", color.New(color.FgYellow))
	add(s.Ran, "OK", color.New(color.FgGreen))
	add(s.Skipped, "SKIPPED", color.New(color.FgCyan))

	var sb strings.Builder
	sb.WriteString(tbl.String())
	sb.WriteString(fmt.Sprintf("%s in %s\n", s.Counts(), formatDuration(s.Duration)))
	return sb.String()
}

// formatDuration keeps durations short enough for a table cell
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(10 * time.Millisecond).String()
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
