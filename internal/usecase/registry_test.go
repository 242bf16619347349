package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/validation"
)

func echoFactory(*container.Container) UseCase {
	return Func(func(_ context.Context, j *job.Job) (Response, error) {
		return Response{Data: j.Data()}, nil
	})
}

type moduleFunc func(r *Registry) error

func (f moduleFunc) Register(r *Registry) error { return f(r) }

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register("echo", echoFactory))
	require.NoError(t, r.RegisterRules("echo", Rules{
		Data: validation.Schema{"foo": {Type: validation.TypeString}},
	}))

	f, ok := r.UseCase("echo")
	require.True(t, ok)
	resp, err := f(nil).Run(context.Background(), job.New(job.Options{Data: map[string]any{"foo": "x"}}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"foo": "x"}, resp.Data)

	rules, ok := r.Rules("echo")
	require.True(t, ok)
	assert.Contains(t, rules.Data, "foo")

	_, ok = r.UseCase("missing")
	assert.False(t, ok)
	_, ok = r.Rules("missing")
	assert.False(t, ok)

	assert.ErrorIs(t, r.Register("echo", echoFactory), ErrDuplicate)
	assert.ErrorIs(t, r.RegisterRules("echo", Rules{}), ErrDuplicate)
	assert.Error(t, r.Register("", echoFactory))
	assert.Error(t, r.Register("nil", nil))
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("b", echoFactory))
	require.NoError(t, r.Register("a", echoFactory))

	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestBuild(t *testing.T) {
	t.Run("registers every module", func(t *testing.T) {
		r, err := Build(
			moduleFunc(func(r *Registry) error { return r.Register("a", echoFactory) }),
			moduleFunc(func(r *Registry) error { return r.Register("b", echoFactory) }),
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, r.Names())
	})

	t.Run("stops at the first error", func(t *testing.T) {
		boom := errors.New("boom")
		r, err := Build(moduleFunc(func(*Registry) error { return boom }))
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, r)
	})
}
