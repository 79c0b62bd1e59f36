package scheduler

import "time"

// Status is the execution state of one task. Lifecycle:
//
//	Pending -> Ready -> {Skipped | Running -> Succeeded | Running -> Failed}
//	Pending -> Blocked (a dependency finalized as Failed or Blocked)
//
// Skipped, Succeeded, Failed and Blocked are terminal.
type Status int

const (
	// StatusPending indicates the task is waiting for its dependencies
	StatusPending Status = iota
	// StatusReady indicates every dependency finalized successfully and the
	// task is queued for execution
	StatusReady
	// StatusRunning indicates the task's action is executing
	StatusRunning
	// StatusSkipped indicates the task's outputs were up to date
	StatusSkipped
	// StatusSucceeded indicates the action ran and returned success
	StatusSucceeded
	// StatusFailed indicates the action ran and returned an error
	StatusFailed
	// StatusBlocked indicates the task will not run because a dependency
	// failed or the run was cancelled
	StatusBlocked
)

// String returns a string representation of the Status
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusSkipped:
		return "skipped"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	switch s {
	case StatusSkipped, StatusSucceeded, StatusFailed, StatusBlocked:
		return true
	}
	return false
}

// Ok reports whether the status satisfies dependents (the task's outputs
// are trustworthy)
func (s Status) Ok() bool {
	return s == StatusSucceeded || s == StatusSkipped
}

// Record is the immutable outcome of one task in one run. A record exists
// if and only if the scheduler visited the task.
type Record struct {
	// Task is the task name
	Task string

	// Status is the terminal status
	Status Status

	// Reason explains a skip or block decision
	Reason string

	// Err is the action error for failed tasks
	Err error

	// StartTime is when the action started, nil for tasks that never ran
	StartTime *time.Time

	// EndTime is when the action finished, nil for tasks that never ran
	EndTime *time.Time

	// Duration is how long the action took
	Duration time.Duration
}

// Event describes one state transition. Events for a single task are
// strictly ordered; events for different tasks may interleave.
type Event struct {
	// Task is the task name
	Task string

	// From is the state before the transition
	From Status

	// To is the state after the transition
	To Status

	// Reason explains skip and block transitions
	Reason string

	// Time is when the transition happened
	Time time.Time
}
