package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpipe/hpipe/internal/graph"
	"github.com/hpipe/hpipe/internal/registry"
	"github.com/hpipe/hpipe/internal/staleness"
)

// recordingAction tracks executions and can be told to fail or stall
type recordingAction struct {
	mu      sync.Mutex
	runs    int
	fail    bool
	delay   time.Duration
	started chan struct{}
}

func (a *recordingAction) Run(ctx context.Context, ec *registry.ExecContext) error {
	a.mu.Lock()
	a.runs++
	a.mu.Unlock()

	if a.started != nil {
		close(a.started)
	}
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if a.fail {
		return errors.New("action failed")
	}
	return nil
}

func (a *recordingAction) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// eventLog collects transitions for later inspection
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) forTask(name string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Task == name {
			out = append(out, ev)
		}
	}
	return out
}

func buildGraph(t *testing.T, tasks []*registry.Task, roots []string) *graph.Graph {
	t.Helper()
	reg := registry.New()
	for _, task := range tasks {
		require.NoError(t, reg.Register(task))
	}
	g, err := graph.Build(reg, roots)
	require.NoError(t, err)
	return g
}

func quietExec() *registry.ExecContext {
	ec := registry.NewExecContext()
	ec.Echo = false
	return ec
}

func TestExecuteLinearChain(t *testing.T) {
	a := &recordingAction{}
	b := &recordingAction{}
	c := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "a", Action: a},
		{Name: "b", Action: b, DependsOn: []string{"a"}},
		{Name: "c", Action: c, DependsOn: []string{"b"}},
	}, []string{"c"})

	log := &eventLog{}
	exec := New(g, nil, Config{Jobs: 4, OnEvent: log.record, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Records, 3)
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, StatusSucceeded, res.Records[name].Status, name)
	}
	assert.Equal(t, 1, a.Runs())
	assert.Equal(t, 1, b.Runs())
	assert.Equal(t, 1, c.Runs())

	// Dependency ordering is observable through the events.
	aDone := eventTime(t, log, "a", StatusSucceeded)
	bStart := eventTime(t, log, "b", StatusRunning)
	assert.False(t, bStart.Before(aDone))
}

func eventTime(t *testing.T, log *eventLog, task string, status Status) time.Time {
	t.Helper()
	for _, ev := range log.forTask(task) {
		if ev.To == status {
			return ev.Time
		}
	}
	t.Fatalf("no %s event for task %s", status, task)
	return time.Time{}
}

func TestExecutePartialFailureContainment(t *testing.T) {
	// base -> {bad, good}; dependent sits behind bad only. good must still
	// run to completion while dependent is blocked.
	bad := &recordingAction{fail: true}
	good := &recordingAction{}
	dep := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "base", Action: &recordingAction{}},
		{Name: "bad", Action: bad, DependsOn: []string{"base"}},
		{Name: "good", Action: good, DependsOn: []string{"base"}},
		{Name: "dependent", Action: dep, DependsOn: []string{"bad"}},
	}, nil)

	exec := New(g, nil, Config{Jobs: 4, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, StatusSucceeded, res.Records["base"].Status)
	assert.Equal(t, StatusFailed, res.Records["bad"].Status)
	assert.Equal(t, StatusSucceeded, res.Records["good"].Status)
	assert.Equal(t, StatusBlocked, res.Records["dependent"].Status)
	assert.Contains(t, res.Records["dependent"].Reason, "bad")
	assert.Equal(t, 0, dep.Runs())
	assert.Error(t, res.Records["bad"].Err)
}

func TestExecuteBlockPropagatesTransitively(t *testing.T) {
	g := buildGraph(t, []*registry.Task{
		{Name: "a", Action: &recordingAction{fail: true}},
		{Name: "b", Action: &recordingAction{}, DependsOn: []string{"a"}},
		{Name: "c", Action: &recordingAction{}, DependsOn: []string{"b"}},
	}, nil)

	exec := New(g, nil, Config{Jobs: 2, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.Equal(t, StatusFailed, res.Records["a"].Status)
	assert.Equal(t, StatusBlocked, res.Records["b"].Status)
	assert.Equal(t, StatusBlocked, res.Records["c"].Status)
	// The block reason names the originally failed task, not the
	// intermediate blocked one.
	assert.Contains(t, res.Records["c"].Reason, "a")
}

func TestExecuteFailFastBlocksIndependentTasks(t *testing.T) {
	// With one worker and fail-fast, the failure of the first task must
	// prevent the independent second task from starting.
	second := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "first", Action: &recordingAction{fail: true}},
		{Name: "second", Action: second},
	}, nil)

	exec := New(g, nil, Config{Jobs: 1, FailFast: true, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, StatusFailed, res.Records["first"].Status)
	assert.Equal(t, StatusBlocked, res.Records["second"].Status)
	assert.Equal(t, 0, second.Runs())
}

func TestExecuteWithoutFailFastRunsIndependentTasks(t *testing.T) {
	second := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "first", Action: &recordingAction{fail: true}},
		{Name: "second", Action: second},
	}, nil)

	exec := New(g, nil, Config{Jobs: 1, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.Equal(t, StatusSucceeded, res.Records["second"].Status)
	assert.Equal(t, 1, second.Runs())
}

func TestExecuteSkipsCurrentOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(out, []byte("y"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(in, old, old))

	act := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "gen", Action: act, Inputs: []string{in}, Outputs: []string{out}},
	}, nil)

	exec := New(g, staleness.NewEvaluator(nil), Config{Jobs: 1, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.True(t, res.Success)
	assert.Equal(t, StatusSkipped, res.Records["gen"].Status)
	assert.Equal(t, 0, act.Runs())
}

func TestExecuteRebuiltDependencyForcesRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(out, []byte("y"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(in, old, old))

	// gen has no outputs so it always runs; pack's outputs look current
	// but must rebuild because gen ran.
	pack := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "gen", Action: &recordingAction{}},
		{Name: "pack", Action: pack, DependsOn: []string{"gen"}, Inputs: []string{in}, Outputs: []string{out}},
	}, nil)

	exec := New(g, staleness.NewEvaluator(nil), Config{Jobs: 1, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.Equal(t, StatusSucceeded, res.Records["pack"].Status)
	assert.Equal(t, 1, pack.Runs())
}

func TestExecuteEventOrderPerTask(t *testing.T) {
	g := buildGraph(t, []*registry.Task{
		{Name: "only", Action: &recordingAction{}},
	}, nil)

	log := &eventLog{}
	exec := New(g, nil, Config{Jobs: 2, OnEvent: log.record, Exec: quietExec()})
	exec.Execute(context.Background())

	events := log.forTask("only")
	require.Len(t, events, 3)
	assert.Equal(t, StatusReady, events[0].To)
	assert.Equal(t, StatusRunning, events[1].To)
	assert.Equal(t, StatusSucceeded, events[2].To)
	assert.Equal(t, StatusPending, events[0].From)
	assert.Equal(t, StatusReady, events[1].From)
	assert.Equal(t, StatusRunning, events[2].From)
}

func TestExecuteCancellationBlocksUnstarted(t *testing.T) {
	started := make(chan struct{})
	slow := &recordingAction{delay: 5 * time.Second, started: started}
	after := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "slow", Action: slow},
		{Name: "after", Action: after, DependsOn: []string{"slow"}},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	exec := New(g, nil, Config{Jobs: 1, Exec: quietExec()})
	res := exec.Execute(ctx)

	assert.False(t, res.Success)
	assert.Equal(t, StatusFailed, res.Records["slow"].Status)
	assert.Equal(t, StatusBlocked, res.Records["after"].Status)
	assert.Equal(t, 0, after.Runs())
}

func TestExecuteDryRunBypassesStaleness(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(in, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(out, []byte("y"), 0644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(in, old, old))

	act := &recordingAction{}
	g := buildGraph(t, []*registry.Task{
		{Name: "gen", Action: act, Inputs: []string{in}, Outputs: []string{out}},
	}, nil)

	ec := quietExec()
	ec.DryRun = true
	exec := New(g, staleness.NewEvaluator(nil), Config{Jobs: 1, Exec: ec})
	res := exec.Execute(context.Background())

	// The action is still invoked so it can echo its command; the action
	// itself is responsible for honoring DryRun.
	assert.Equal(t, StatusSucceeded, res.Records["gen"].Status)
	assert.Equal(t, 1, act.Runs())
}

func TestExecuteConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0

	makeTask := func(name string) *registry.Task {
		return &registry.Task{Name: name, Action: &gaugeAction{mu: &mu, running: &running, peak: &peak}}
	}
	g := buildGraph(t, []*registry.Task{
		makeTask("t1"), makeTask("t2"), makeTask("t3"), makeTask("t4"), makeTask("t5"),
	}, nil)

	exec := New(g, nil, Config{Jobs: 2, Exec: quietExec()})
	res := exec.Execute(context.Background())

	assert.True(t, res.Success)
	assert.LessOrEqual(t, peak, 2)
}

// gaugeAction tracks the peak number of concurrent executions
type gaugeAction struct {
	mu      *sync.Mutex
	running *int
	peak    *int
}

func (a *gaugeAction) Run(ctx context.Context, ec *registry.ExecContext) error {
	a.mu.Lock()
	*a.running++
	if *a.running > *a.peak {
		*a.peak = *a.running
	}
	a.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	a.mu.Lock()
	*a.running--
	a.mu.Unlock()
	return nil
}

func TestTaskEnvironmentLayering(t *testing.T) {
	var got map[string]string
	var gotDir string
	capture := &captureAction{fn: func(ec *registry.ExecContext) {
		got = ec.Env
		gotDir = ec.Dir
	}}

	g := buildGraph(t, []*registry.Task{
		{Name: "t", Action: capture, Dir: "/tmp", Env: map[string]string{"TASK": "yes", "SHARED": "task"}},
	}, nil)

	ec := quietExec()
	ec.Env = map[string]string{"BASE": "yes", "SHARED": "base"}
	exec := New(g, nil, Config{Jobs: 1, Exec: ec})
	res := exec.Execute(context.Background())

	require.True(t, res.Success)
	assert.Equal(t, "/tmp", gotDir)
	assert.Equal(t, "yes", got["BASE"])
	assert.Equal(t, "yes", got["TASK"])
	assert.Equal(t, "task", got["SHARED"], "task env wins over base env")
}

type captureAction struct {
	fn func(ec *registry.ExecContext)
}

func (a *captureAction) Run(ctx context.Context, ec *registry.ExecContext) error {
	a.fn(ec)
	return nil
}

func TestStatusStringAndPredicates(t *testing.T) {
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "blocked", StatusBlocked.String())

	assert.True(t, StatusSucceeded.Ok())
	assert.True(t, StatusSkipped.Ok())
	assert.False(t, StatusFailed.Ok())

	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusPending.Terminal())
}
