package staleness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpipe/hpipe/internal/registry"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// touch sets a file's timestamps, creating it if needed
func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeFile(t, path, "")
	}
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestNoOutputsAlwaysStale(t *testing.T) {
	eval := NewEvaluator(nil)
	task := &registry.Task{Name: "lint"}

	stale, reason, err := eval.IsStale(task, false)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "no declared outputs", reason)

	// Still stale even when inputs exist and nothing changed.
	stale, _, err = eval.IsStale(task, false)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestRebuiltDependencyForcesStale(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	touch(t, in, now.Add(-2*time.Hour))
	touch(t, out, now.Add(-1*time.Hour))

	eval := NewEvaluator(nil)
	task := &registry.Task{Name: "t", Inputs: []string{in}, Outputs: []string{out}}

	stale, _, err := eval.IsStale(task, false)
	require.NoError(t, err)
	assert.False(t, stale)

	stale, reason, err := eval.IsStale(task, true)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "dependency was rebuilt", reason)
}

func TestMissingOutputIsStale(t *testing.T) {
	dir := t.TempDir()
	eval := NewEvaluator(nil)
	task := &registry.Task{
		Name:    "t",
		Outputs: []string{filepath.Join(dir, "never-made.txt")},
	}

	stale, reason, err := eval.IsStale(task, false)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Contains(t, reason, "missing")
}

func TestModTimePolicy(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")

	t.Run("output newer than input is current", func(t *testing.T) {
		touch(t, in, now.Add(-2*time.Hour))
		touch(t, out, now.Add(-1*time.Hour))

		current, err := ModTimePolicy{}.OutputsCurrent([]string{in}, []string{out})
		require.NoError(t, err)
		assert.True(t, current)
	})

	t.Run("input newer than output is stale", func(t *testing.T) {
		touch(t, in, now)

		current, err := ModTimePolicy{}.OutputsCurrent([]string{in}, []string{out})
		require.NoError(t, err)
		assert.False(t, current)
	})

	t.Run("missing input is stale without error", func(t *testing.T) {
		missing := filepath.Join(dir, "gone.txt")

		current, err := ModTimePolicy{}.OutputsCurrent([]string{missing}, []string{out})
		require.NoError(t, err)
		assert.False(t, current)
	})
}

func TestContentHashPolicy(t *testing.T) {
	dir := t.TempDir()
	policy := ContentHashPolicy{Dir: filepath.Join(dir, "hashes")}

	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	writeFile(t, in, "v1")
	writeFile(t, out, "artifact")

	// No committed record yet.
	current, err := policy.OutputsCurrent([]string{in}, []string{out})
	require.NoError(t, err)
	assert.False(t, current)

	require.NoError(t, policy.Commit([]string{in}, []string{out}))

	current, err = policy.OutputsCurrent([]string{in}, []string{out})
	require.NoError(t, err)
	assert.True(t, current)

	// Touching the mtime alone does not matter; content does.
	touch(t, in, time.Now().Add(time.Hour))
	current, err = policy.OutputsCurrent([]string{in}, []string{out})
	require.NoError(t, err)
	assert.True(t, current)

	writeFile(t, in, "v2")
	current, err = policy.OutputsCurrent([]string{in}, []string{out})
	require.NoError(t, err)
	assert.False(t, current)
}

func TestContentHashDistinguishesOutputSets(t *testing.T) {
	dir := t.TempDir()
	policy := ContentHashPolicy{Dir: filepath.Join(dir, "hashes")}

	in := filepath.Join(dir, "in.txt")
	writeFile(t, in, "shared input")

	outA := filepath.Join(dir, "a.bin")
	outB := filepath.Join(dir, "b.bin")
	writeFile(t, outA, "a")
	writeFile(t, outB, "b")

	require.NoError(t, policy.Commit([]string{in}, []string{outA}))

	current, err := policy.OutputsCurrent([]string{in}, []string{outB})
	require.NoError(t, err)
	assert.False(t, current, "record for one output set must not satisfy another")
}

func TestEvaluatorUsesPolicy(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	touch(t, in, now)
	touch(t, out, now.Add(-time.Hour))

	eval := NewEvaluator(ModTimePolicy{})
	task := &registry.Task{Name: "t", Inputs: []string{in}, Outputs: []string{out}}

	stale, reason, err := eval.IsStale(task, false)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Contains(t, reason, "mtime")
}

func TestFileSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	writeFile(t, path, "hello")

	sum, err := FileSHA256(path)
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)

	_, err = FileSHA256(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
