package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContext_CloneIsIndependent(t *testing.T) {
	original := Context{
		FunctionName:     "target_fn",
		PreviousAttempts: []map[string]Result{{"compiler": {Status: StatusSuccess}}},
	}

	clone := original.Clone()
	clone.FunctionName = "changed"
	clone.PreviousAttempts[0]["compiler"] = Result{Status: StatusFailure}

	require.Equal(t, "target_fn", original.FunctionName)
	require.Equal(t, StatusSuccess, original.PreviousAttempts[0]["compiler"].Status)
}

func TestContext_CloneNilPreviousAttempts(t *testing.T) {
	clone := Context{}.Clone()
	require.Nil(t, clone.PreviousAttempts)
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	r := NewRegistry()
	r.Register("setup", func() (Plugin, error) { return stubPlugin{id: "setup"}, nil })

	p, err := r.New("setup")
	require.NoError(t, err)
	require.Equal(t, "setup", p.ID())

	require.ElementsMatch(t, []string{"setup"}, r.IDs())
}

func TestRegistry_UnknownPlugin(t *testing.T) {
	r := NewRegistry()
	_, err := r.New("missing")
	require.True(t, errors.Is(err, ErrUnknownPlugin))
}

func TestRegistry_RegisterPanicsOnMisuse(t *testing.T) {
	r := NewRegistry()
	require.Panics(t, func() { r.Register("", func() (Plugin, error) { return nil, nil }) })
	require.Panics(t, func() { r.Register("x", nil) })
}

type stubPlugin struct{ id string }

func (s stubPlugin) ID() string   { return s.id }
func (s stubPlugin) Name() string { return s.id }
func (s stubPlugin) Execute(ctx context.Context, pctx Context) (Result, Context, error) {
	return Result{}, pctx, nil
}
