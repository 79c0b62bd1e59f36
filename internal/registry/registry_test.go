package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpipe/hpipe/internal/errors"
)

type nopAction struct{}

func (nopAction) Run(ctx context.Context, ec *ExecContext) error { return nil }

func task(name string, deps ...string) *Task {
	return &Task{Name: name, Action: nopAction{}, DependsOn: deps}
}

func TestRegisterAndGet(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Register(task("build")))
	require.NoError(t, reg.Register(task("test", "build")))

	got, err := reg.Get("build")
	require.NoError(t, err)
	assert.Equal(t, "build", got.Name)

	assert.True(t, reg.Has("test"))
	assert.False(t, reg.Has("deploy"))
	assert.Equal(t, 2, reg.Len())
}

func TestRegisterDuplicateName(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Register(task("build")))
	err := reg.Register(task("build"))

	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Equal(t, "CONFIG-"+errors.CodeDuplicateTask, errors.GetErrorCode(err))
}

func TestRegisterRequiresName(t *testing.T) {
	reg := New()

	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(&Task{Action: nopAction{}}))
}

func TestGetUnknownName(t *testing.T) {
	reg := New()

	_, err := reg.Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Equal(t, "CONFIG-"+errors.CodeUnknownTask, errors.GetErrorCode(err))
}

func TestNamesPreserveRegistrationOrder(t *testing.T) {
	reg := New()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(task(name)))
	}

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, reg.Names())
	assert.Equal(t, 0, reg.Index("zeta"))
	assert.Equal(t, 2, reg.Index("mid"))
	assert.Equal(t, -1, reg.Index("missing"))
}
