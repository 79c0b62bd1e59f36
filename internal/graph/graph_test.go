package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpipe/hpipe/internal/errors"
	"github.com/hpipe/hpipe/internal/registry"
)

type nopAction struct{}

func (nopAction) Run(ctx context.Context, ec *registry.ExecContext) error { return nil }

func newRegistry(t *testing.T, tasks ...*registry.Task) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, task := range tasks {
		require.NoError(t, reg.Register(task))
	}
	return reg
}

func task(name string, deps ...string) *registry.Task {
	return &registry.Task{Name: name, Action: nopAction{}, DependsOn: deps}
}

func TestBuildLinearChain(t *testing.T) {
	reg := newRegistry(t,
		task("compile"),
		task("test", "compile"),
		task("package", "test"),
	)

	g, err := Build(reg, []string{"package"})
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []string{"compile", "test", "package"}, g.OrderedNames())
}

func TestBuildClosureExcludesUnreachable(t *testing.T) {
	reg := newRegistry(t,
		task("a"),
		task("b", "a"),
		task("unrelated"),
	)

	g, err := Build(reg, []string{"b"})
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	_, ok := g.Index("unrelated")
	assert.False(t, ok)
}

func TestBuildEmptyRootsSelectsEverything(t *testing.T) {
	reg := newRegistry(t, task("a"), task("b"), task("c", "a"))

	g, err := Build(reg, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
}

func TestBuildUnknownDependencyNamesReferrer(t *testing.T) {
	reg := newRegistry(t, task("app", "libfoo"))

	_, err := Build(reg, []string{"app"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Equal(t, "CONFIG-"+errors.CodeUnknownTask, errors.GetErrorCode(err))

	var te *errors.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "libfoo", te.Context["task"])
	assert.Equal(t, "app", te.Context["referenced_by"])
}

func TestBuildUnknownRoot(t *testing.T) {
	reg := newRegistry(t, task("a"))

	_, err := Build(reg, []string{"missing"})
	require.Error(t, err)
	assert.Equal(t, "CONFIG-"+errors.CodeUnknownTask, errors.GetErrorCode(err))
}

func TestBuildReportsFullCycle(t *testing.T) {
	reg := newRegistry(t,
		task("a", "c"),
		task("b", "a"),
		task("c", "b"),
	)

	_, err := Build(reg, []string{"a"})
	require.Error(t, err)
	assert.Equal(t, "CONFIG-"+errors.CodeCyclicDependency, errors.GetErrorCode(err))

	// The message spells out every member of the cycle.
	msg := err.Error()
	assert.Contains(t, msg, "a")
	assert.Contains(t, msg, "b")
	assert.Contains(t, msg, "c")
	assert.Contains(t, msg, "->")
}

func TestBuildSelfCycle(t *testing.T) {
	reg := newRegistry(t, task("loop", "loop"))

	_, err := Build(reg, []string{"loop"})
	require.Error(t, err)
	assert.Equal(t, "CONFIG-"+errors.CodeCyclicDependency, errors.GetErrorCode(err))
}

func TestTopologicalOrderRespectsDependencies(t *testing.T) {
	// Diamond: d depends on b and c, both depend on a.
	reg := newRegistry(t,
		task("a"),
		task("b", "a"),
		task("c", "a"),
		task("d", "b", "c"),
	)

	g, err := Build(reg, []string{"d"})
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, name := range g.OrderedNames() {
		pos[name] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestTopologicalOrderBreaksTiesByRegistration(t *testing.T) {
	// zeta and alpha are both roots with no dependencies; zeta was
	// registered first so it lists first regardless of name.
	reg := newRegistry(t, task("zeta"), task("alpha"))

	g, err := Build(reg, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha"}, g.OrderedNames())
}

func TestDependentsMirrorDeps(t *testing.T) {
	reg := newRegistry(t, task("base"), task("user", "base"))

	g, err := Build(reg, nil)
	require.NoError(t, err)

	baseID, ok := g.Index("base")
	require.True(t, ok)
	userID, ok := g.Index("user")
	require.True(t, ok)

	assert.Equal(t, []int{baseID}, g.Deps(userID))
	assert.Equal(t, []int{userID}, g.Dependents(baseID))
	assert.Empty(t, g.Deps(baseID))
}

func TestRootsResolveToIDs(t *testing.T) {
	reg := newRegistry(t, task("a"), task("b", "a"))

	g, err := Build(reg, []string{"b"})
	require.NoError(t, err)

	require.Len(t, g.Roots(), 1)
	assert.Equal(t, "b", g.Task(g.Roots()[0]).Name)
}
