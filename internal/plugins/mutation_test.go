package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-forge/pipelinerunner/internal/collaborator"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

type fakeMutationSearcher struct {
	result collaborator.MutationResult
	err    error

	gotFunctionName     string
	gotSeedCode         string
	gotTargetObjectPath string
}

func (f *fakeMutationSearcher) Search(ctx context.Context, functionName, seedCode, targetObjectPath string) (collaborator.MutationResult, error) {
	f.gotFunctionName = functionName
	f.gotSeedCode = seedCode
	f.gotTargetObjectPath = targetObjectPath
	return f.result, f.err
}

func TestMutationPlugin_Execute_IsANoOp(t *testing.T) {
	p := NewMutationPlugin("mutation-search", &fakeMutationSearcher{})
	result, outCtx, err := p.Execute(context.Background(), plugin.Context{FunctionName: "target_fn"})

	require.NoError(t, err)
	require.Equal(t, plugin.StatusSkipped, result.Status)
	require.Equal(t, "target_fn", outCtx.FunctionName)
}

func TestMutationPlugin_Background_ShouldSpawnOnlyOnFirstAttempt(t *testing.T) {
	p := NewMutationPlugin("mutation-search", &fakeMutationSearcher{})
	capability := p.Background()

	cfg := capability.ShouldSpawn(plugin.Context{AttemptNumber: 1, FunctionName: "target_fn", GeneratedCode: "seed"})
	require.NotNil(t, cfg)
	require.Equal(t, "mutation-search", cfg.PluginID)

	cfg2 := capability.ShouldSpawn(plugin.Context{AttemptNumber: 2})
	require.Nil(t, cfg2)
}

func TestMutationPlugin_Background_RunInvokesSearcherWithSeed(t *testing.T) {
	searcher := &fakeMutationSearcher{result: collaborator.MutationResult{Matched: true, Code: "int target_fn(void){return 2;}"}}
	p := NewMutationPlugin("mutation-search", searcher)
	capability := p.Background()

	cfg := capability.ShouldSpawn(plugin.Context{AttemptNumber: 1, FunctionName: "target_fn", GeneratedCode: "seed code", TargetObjectPath: "/scratch/target.o"})
	require.NotNil(t, cfg)

	result, err := capability.Run(context.Background(), *cfg)
	require.NoError(t, err)
	require.Equal(t, "target_fn", searcher.gotFunctionName)
	require.Equal(t, "seed code", searcher.gotSeedCode)
	require.Equal(t, "/scratch/target.o", searcher.gotTargetObjectPath)

	mr, ok := result.(collaborator.MutationResult)
	require.True(t, ok)
	require.True(t, mr.Matched)
}

func TestMutationPlugin_Background_IsSuccessAndToBackgroundTaskResult(t *testing.T) {
	p := NewMutationPlugin("mutation-search", &fakeMutationSearcher{})
	capability := p.Background()

	matched := collaborator.MutationResult{Matched: true, Code: "code"}
	require.True(t, capability.IsSuccess(matched))

	notMatched := collaborator.MutationResult{Matched: false}
	require.False(t, capability.IsSuccess(notMatched))

	btr := capability.ToBackgroundTaskResult(matched, plugin.TaskMeta{TaskID: "mutation-search-1", TriggeredByAttempt: 1})
	require.Equal(t, "mutation-search-1", btr.TaskID)
	require.Equal(t, "mutation-search", btr.PluginID)
	require.True(t, btr.Success)
}
