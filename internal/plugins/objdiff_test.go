package plugins

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-forge/pipelinerunner/internal/collaborator"
	"github.com/vela-forge/pipelinerunner/internal/feedback"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

type fakeScorer struct {
	diff     collaborator.DiffResult
	parseErr error
	diffErr  error
}

func (f *fakeScorer) ParseObjectFile(ctx context.Context, path, label string) (collaborator.ParsedObject, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return path, nil
}

func (f *fakeScorer) RunDiff(ctx context.Context, parsed collaborator.ParsedObject) (collaborator.DiffResult, error) {
	if f.diffErr != nil {
		return collaborator.DiffResult{}, f.diffErr
	}
	return f.diff, nil
}

func (f *fakeScorer) FindSymbol(ctx context.Context, parsed collaborator.ParsedObject, name string) (collaborator.Symbol, bool, error) {
	return nil, false, nil
}

func (f *fakeScorer) GetAssemblyFromSymbol(ctx context.Context, parsed collaborator.ParsedObject, name string) (string, error) {
	return "", nil
}

func TestObjDiffPlugin_Execute_NoCompiledObjFails(t *testing.T) {
	p := NewObjDiffPlugin("objdiff", &fakeScorer{})

	result, _, err := p.Execute(context.Background(), plugin.Context{})
	require.NoError(t, err)
	require.Equal(t, plugin.StatusFailure, result.Status)
	require.Contains(t, result.Err, "no compiled object")
}

func TestObjDiffPlugin_Execute_ByteIdenticalIsSuccess(t *testing.T) {
	scorer := &fakeScorer{diff: collaborator.DiffResult{DifferenceCount: 0}}
	p := NewObjDiffPlugin("objdiff", scorer)

	pctx := plugin.Context{CompiledObjPath: "/scratch/a.o", TargetObjectPath: "/scratch/target.o", GeneratedCode: "code"}
	result, _, err := p.Execute(context.Background(), pctx)

	require.NoError(t, err)
	require.Equal(t, plugin.StatusSuccess, result.Status)
	data, ok := result.Data.(feedback.ObjDiffData)
	require.True(t, ok)
	require.Equal(t, 0, data.DifferenceCount)
}

func TestObjDiffPlugin_Execute_DifferencesRemainIsFailure(t *testing.T) {
	scorer := &fakeScorer{diff: collaborator.DiffResult{DifferenceCount: 4}}
	p := NewObjDiffPlugin("objdiff", scorer)

	pctx := plugin.Context{CompiledObjPath: "/scratch/a.o", TargetObjectPath: "/scratch/target.o", GeneratedCode: "code"}
	result, _, err := p.Execute(context.Background(), pctx)

	require.NoError(t, err)
	require.Equal(t, plugin.StatusFailure, result.Status)
	data, ok := result.Data.(feedback.ObjDiffData)
	require.True(t, ok)
	require.Equal(t, 4, data.DifferenceCount)
}

func TestObjDiffPlugin_Execute_ParseFailurePropagates(t *testing.T) {
	scorer := &fakeScorer{parseErr: errors.New("malformed ELF")}
	p := NewObjDiffPlugin("objdiff", scorer)

	pctx := plugin.Context{CompiledObjPath: "/scratch/a.o", TargetObjectPath: "/scratch/target.o"}
	result, _, err := p.Execute(context.Background(), pctx)

	require.NoError(t, err)
	require.Equal(t, plugin.StatusFailure, result.Status)
	require.Contains(t, result.Err, "malformed ELF")
}
