// Package scheduler drives every task of a dependency graph to a terminal
// state. A bounded worker pool pulls Ready tasks from a priority queue; a
// task becomes Ready only when all of its dependencies finalized as
// Succeeded or Skipped, which is the core ordering guarantee.
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/emirpasic/gods/utils"
	"github.com/google/uuid"

	"github.com/hpipe/hpipe/internal/graph"
	"github.com/hpipe/hpipe/internal/logger"
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/staleness"
)

// Config contains configuration for one run
type Config struct {
	// Jobs is the maximum number of actions running concurrently,
	// defaulting to the available parallelism
	Jobs int

	// FailFast stops scheduling new tasks after the first failure; tasks
	// that never started finalize as Blocked
	FailFast bool

	// OnEvent, when set, is invoked synchronously for every state
	// transition. It runs under the scheduler lock and must return
	// quickly and never call back into the Executor.
	OnEvent func(Event)

	// Exec is the base execution context handed to actions; per-task
	// directory and environment are layered on top of it
	Exec *registry.ExecContext
}

// Result contains the outcome of one run
type Result struct {
	// RunID uniquely identifies the invocation
	RunID string

	// Records maps task name to its terminal record
	Records map[string]*Record

	// Duration is the wall time of the whole run
	Duration time.Duration

	// Success is true when every task finalized as Succeeded or Skipped
	Success bool
}

// Executor runs the tasks of one graph. It holds per-invocation state only:
// create a fresh Executor per run, never share one across invocations.
type Executor struct {
	graph *graph.Graph
	eval  *staleness.Evaluator
	cfg   Config

	mu        sync.Mutex
	cond      *sync.Cond
	status    []Status
	claimed   []bool // popped by a worker, no longer cancellable
	records   map[string]*Record
	remaining []int
	ready     *priorityqueue.Queue
	finalized int
	cancelled bool
	runID     string
}

// New creates an executor for one run over the given graph
func New(g *graph.Graph, eval *staleness.Evaluator, cfg Config) *Executor {
	if cfg.Jobs <= 0 {
		cfg.Jobs = runtime.NumCPU()
	}
	if cfg.Exec == nil {
		cfg.Exec = registry.NewExecContext()
	}
	if eval == nil {
		eval = staleness.NewEvaluator(nil)
	}

	e := &Executor{
		graph:     g,
		eval:      eval,
		cfg:       cfg,
		status:    make([]Status, g.Len()),
		claimed:   make([]bool, g.Len()),
		records:   make(map[string]*Record, g.Len()),
		remaining: make([]int, g.Len()),
		ready:     priorityqueue.NewWith(utils.IntComparator),
		runID:     uuid.NewString(),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Execute drives all tasks to a terminal state and returns the run result.
// Cancelling ctx prevents further tasks from starting; in-flight actions
// are allowed to finish rather than being killed, to avoid partial outputs.
func (e *Executor) Execute(ctx context.Context) *Result {
	start := time.Now()

	logger.Op.WithFields(map[string]interface{}{
		"run_id": e.runID,
		"tasks":  e.graph.Len(),
		"jobs":   e.cfg.Jobs,
	}).Info("Starting run")

	e.mu.Lock()
	for id := range e.remaining {
		e.remaining[id] = len(e.graph.Deps(id))
	}
	for _, id := range e.graph.Order() {
		if e.remaining[id] == 0 {
			e.markReadyLocked(id)
		}
	}
	e.mu.Unlock()
	e.cond.Broadcast()

	// Watch for external cancellation for the lifetime of the run.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			if !e.cancelled {
				e.cancelled = true
				e.blockUnstartedLocked("run cancelled")
			}
			e.mu.Unlock()
			e.cond.Broadcast()
		case <-watchDone:
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}

	e.mu.Lock()
	for e.finalized < e.graph.Len() {
		e.cond.Wait()
	}
	e.mu.Unlock()
	e.cond.Broadcast()
	wg.Wait()
	close(watchDone)

	return e.buildResult(time.Since(start))
}

// worker pulls Ready tasks until every task in the graph is finalized
func (e *Executor) worker(ctx context.Context) {
	for {
		e.mu.Lock()
		for e.finalized < e.graph.Len() && e.ready.Empty() {
			e.cond.Wait()
		}
		if e.finalized >= e.graph.Len() {
			e.mu.Unlock()
			return
		}
		v, _ := e.ready.Dequeue()
		id := v.(int)
		if e.status[id] != StatusReady {
			// Finalized while queued (fail-fast or cancellation).
			e.mu.Unlock()
			continue
		}
		e.claimed[id] = true
		depRebuilt := e.anyDepRanLocked(id)
		e.mu.Unlock()

		e.runTask(ctx, id, depRebuilt)
	}
}

// runTask skips or executes one Ready task and finalizes it
func (e *Executor) runTask(ctx context.Context, id int, depRebuilt bool) {
	t := e.graph.Task(id)

	// Dry runs bypass staleness so every task echoes its command.
	if e.cfg.Exec.DryRun {
		e.runStale(ctx, id, t)
		return
	}

	stale, reason, err := e.eval.IsStale(t, depRebuilt)
	if err != nil {
		// Treat an unreadable input conservatively: re-run the task and
		// let its action surface the real problem.
		logger.Op.WithFields(map[string]interface{}{
			"task":  t.Name,
			"error": err.Error(),
		}).Warn("Staleness check failed, treating task as stale")
		stale, reason = true, "staleness check failed"
	}

	if !stale {
		e.mu.Lock()
		e.finalizeLocked(id, &Record{
			Task:   t.Name,
			Status: StatusSkipped,
			Reason: reason,
		})
		e.mu.Unlock()
		e.cond.Broadcast()
		return
	}

	e.runStale(ctx, id, t)
}

// runStale executes the task's action and finalizes the outcome
func (e *Executor) runStale(ctx context.Context, id int, t *registry.Task) {
	e.mu.Lock()
	e.transitionLocked(id, StatusRunning, "")
	e.mu.Unlock()

	startTime := time.Now()
	runErr := t.Action.Run(ctx, e.execContextFor(t))
	endTime := time.Now()

	if runErr == nil && !e.cfg.Exec.DryRun {
		if err := e.eval.Commit(t); err != nil {
			logger.Op.WithFields(map[string]interface{}{
				"task":  t.Name,
				"error": err.Error(),
			}).Warn("Failed to record input state, next run will re-run the task")
		}
	}

	rec := &Record{
		Task:      t.Name,
		StartTime: &startTime,
		EndTime:   &endTime,
		Duration:  endTime.Sub(startTime),
	}
	if runErr != nil {
		rec.Status = StatusFailed
		rec.Err = runErr
	} else {
		rec.Status = StatusSucceeded
	}

	e.mu.Lock()
	e.finalizeLocked(id, rec)
	e.mu.Unlock()
	e.cond.Broadcast()
}

// markReadyLocked moves a Pending task to Ready and enqueues it. The queue
// is ordered by arena id, i.e. registration order, for deterministic
// dispatch among mutually-ready tasks.
func (e *Executor) markReadyLocked(id int) {
	e.transitionLocked(id, StatusReady, "")
	e.ready.Enqueue(id)
}

// finalizeLocked records a terminal status and propagates it to dependents
func (e *Executor) finalizeLocked(id int, rec *Record) {
	e.transitionLocked(id, rec.Status, rec.Reason)
	e.records[rec.Task] = rec
	e.finalized++

	if rec.Status.Ok() {
		for _, dep := range e.graph.Dependents(id) {
			e.remaining[dep]--
			if e.remaining[dep] == 0 && e.status[dep] == StatusPending && !e.cancelled {
				e.markReadyLocked(dep)
			}
		}
		return
	}

	e.blockDependentsLocked(id, rec.Task)

	if rec.Status == StatusFailed && e.cfg.FailFast && !e.cancelled {
		e.cancelled = true
		e.blockUnstartedLocked("fail-fast: a task failed")
	}
}

// blockDependentsLocked marks every not-yet-started transitive dependent of
// a failed task as Blocked
func (e *Executor) blockDependentsLocked(id int, cause string) {
	for _, dep := range e.graph.Dependents(id) {
		if e.status[dep].Terminal() || e.status[dep] == StatusRunning {
			continue
		}
		t := e.graph.Task(dep)
		e.transitionLocked(dep, StatusBlocked, "dependency "+cause+" failed")
		e.records[t.Name] = &Record{
			Task:   t.Name,
			Status: StatusBlocked,
			Reason: "dependency " + cause + " failed",
		}
		e.finalized++
		e.blockDependentsLocked(dep, cause)
	}
}

// blockUnstartedLocked finalizes every task that has not started as Blocked
func (e *Executor) blockUnstartedLocked(reason string) {
	for id := range e.status {
		if e.status[id] != StatusPending && e.status[id] != StatusReady {
			continue
		}
		if e.claimed[id] {
			// A worker already pulled it; let it run to completion.
			continue
		}
		t := e.graph.Task(id)
		e.transitionLocked(id, StatusBlocked, reason)
		e.records[t.Name] = &Record{
			Task:   t.Name,
			Status: StatusBlocked,
			Reason: reason,
		}
		e.finalized++
	}
}

// transitionLocked applies one state change and emits its event. Events are
// emitted under the lock, so transitions of a single task are observed in
// order.
func (e *Executor) transitionLocked(id int, to Status, reason string) {
	from := e.status[id]
	e.status[id] = to
	if e.cfg.OnEvent != nil {
		e.cfg.OnEvent(Event{
			Task:   e.graph.Task(id).Name,
			From:   from,
			To:     to,
			Reason: reason,
			Time:   time.Now(),
		})
	}
}

// anyDepRanLocked reports whether any dependency actually ran (was not
// skipped) this invocation, which forces a rebuild
func (e *Executor) anyDepRanLocked(id int) bool {
	for _, dep := range e.graph.Deps(id) {
		if e.status[dep] == StatusSucceeded {
			return true
		}
	}
	return false
}

// execContextFor layers the task's directory and environment over the base
// execution context
func (e *Executor) execContextFor(t *registry.Task) *registry.ExecContext {
	ec := *e.cfg.Exec
	if t.Dir != "" {
		ec.Dir = t.Dir
	}
	if len(t.Env) > 0 {
		merged := make(map[string]string, len(ec.Env)+len(t.Env))
		for k, v := range ec.Env {
			merged[k] = v
		}
		for k, v := range t.Env {
			merged[k] = v
		}
		ec.Env = merged
	}
	return &ec
}

// buildResult snapshots the records into an immutable result
func (e *Executor) buildResult(elapsed time.Duration) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &Result{
		RunID:    e.runID,
		Records:  make(map[string]*Record, len(e.records)),
		Duration: elapsed,
		Success:  true,
	}
	for name, rec := range e.records {
		res.Records[name] = rec
		if !rec.Status.Ok() {
			res.Success = false
		}
	}

	if res.Success {
		logger.Op.WithFields(map[string]interface{}{
			"run_id":  e.runID,
			"elapsed": elapsed.Round(time.Millisecond).String(),
		}).Info("Run completed")
	} else {
		logger.Op.WithFields(map[string]interface{}{
			"run_id":  e.runID,
			"elapsed": elapsed.Round(time.Millisecond).String(),
		}).Error("Run completed with failures")
	}
	return res
}
