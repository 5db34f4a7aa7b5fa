package plugins

import (
	"context"

	"github.com/vela-forge/pipelinerunner/internal/collaborator"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// MutationPlugin exposes a collaborator.MutationSearcher as a
// plugin.BackgroundCapable: it races a code-mutation search against the
// foreground AI-powered retry loop, spawned once per pipeline run.
type MutationPlugin struct {
	id       string
	searcher collaborator.MutationSearcher
}

// NewMutationPlugin builds a MutationPlugin, id conventionally
// "mutation-search".
func NewMutationPlugin(id string, searcher collaborator.MutationSearcher) *MutationPlugin {
	return &MutationPlugin{id: id, searcher: searcher}
}

func (p *MutationPlugin) ID() string   { return p.id }
func (p *MutationPlugin) Name() string { return "Mutation Search" }

// Execute is a no-op in the foreground sequence: this plugin only
// participates via its BackgroundCapability.
func (p *MutationPlugin) Execute(ctx context.Context, pctx plugin.Context) (plugin.Result, plugin.Context, error) {
	return plugin.Result{PluginID: p.id, PluginName: p.Name(), Status: plugin.StatusSkipped}, pctx, nil
}

// Background returns this plugin's BackgroundCapability.
func (p *MutationPlugin) Background() plugin.BackgroundCapability {
	return mutationCapability{id: p.id, searcher: p.searcher}
}

type mutationSeed struct {
	functionName     string
	seedCode         string
	targetObjectPath string
}

type mutationCapability struct {
	id       string
	searcher collaborator.MutationSearcher
}

// ShouldSpawn spawns exactly one search task per pipeline run, seeded
// from the first foreground attempt's candidate code. One long-running
// searcher per run keeps the race simple and avoids unbounded concurrent
// search tasks.
func (c mutationCapability) ShouldSpawn(pctx plugin.Context) *plugin.SpawnConfig {
	if pctx.AttemptNumber != 1 {
		return nil
	}
	return &plugin.SpawnConfig{
		PluginID: c.id,
		Payload: mutationSeed{
			functionName:     pctx.FunctionName,
			seedCode:         pctx.GeneratedCode,
			targetObjectPath: pctx.TargetObjectPath,
		},
	}
}

func (c mutationCapability) Run(ctx context.Context, cfg plugin.SpawnConfig) (any, error) {
	seed, _ := cfg.Payload.(mutationSeed)
	return c.searcher.Search(ctx, seed.functionName, seed.seedCode, seed.targetObjectPath)
}

func (c mutationCapability) IsSuccess(result any) bool {
	mr, ok := result.(collaborator.MutationResult)
	return ok && mr.Matched
}

func (c mutationCapability) ToBackgroundTaskResult(result any, meta plugin.TaskMeta) plugin.BackgroundTaskResult {
	mr, _ := result.(collaborator.MutationResult)
	return plugin.BackgroundTaskResult{
		TaskID:             meta.TaskID,
		PluginID:           c.id,
		Success:            mr.Matched,
		DurationMs:         meta.DurationMs,
		StartTimestamp:     meta.StartTimestamp,
		TriggeredByAttempt: meta.TriggeredByAttempt,
		Data:               mr,
	}
}
