package plugins

import (
	"context"
	"time"

	"github.com/vela-forge/pipelinerunner/internal/collaborator"
	"github.com/vela-forge/pipelinerunner/internal/feedback"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// ObjDiffPlugin wraps a collaborator.Scorer as a plugin.Plugin, id
// conventionally "objdiff" so the retry-feedback builder finds its
// Result.Data (a feedback.ObjDiffData). Success means byte-identical
// assembly (DifferenceCount == 0).
type ObjDiffPlugin struct {
	id     string
	scorer collaborator.Scorer
}

// NewObjDiffPlugin builds an ObjDiffPlugin. id is conventionally "objdiff".
func NewObjDiffPlugin(id string, scorer collaborator.Scorer) *ObjDiffPlugin {
	return &ObjDiffPlugin{id: id, scorer: scorer}
}

func (p *ObjDiffPlugin) ID() string   { return p.id }
func (p *ObjDiffPlugin) Name() string { return "Object Diff" }

func (p *ObjDiffPlugin) Execute(ctx context.Context, pctx plugin.Context) (plugin.Result, plugin.Context, error) {
	start := time.Now()

	if pctx.CompiledObjPath == "" {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.Name(),
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Err:        "objdiff: no compiled object to compare",
		}, pctx, nil
	}

	// The target parse registers the reference object with the scorer under
	// its label; RunDiff compares the candidate against it.
	if _, err := p.scorer.ParseObjectFile(ctx, pctx.TargetObjectPath, "target"); err != nil {
		return p.failure(start, "parsing target object: "+err.Error()), pctx, nil
	}
	candidate, err := p.scorer.ParseObjectFile(ctx, pctx.CompiledObjPath, "candidate")
	if err != nil {
		return p.failure(start, "parsing candidate object: "+err.Error()), pctx, nil
	}

	diff, err := p.scorer.RunDiff(ctx, candidate)
	if err != nil {
		return p.failure(start, "running diff: "+err.Error()), pctx, nil
	}

	data := feedback.ObjDiffData{DifferenceCount: diff.DifferenceCount, Code: pctx.GeneratedCode}

	if diff.DifferenceCount == 0 {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.Name(),
			Status:     plugin.StatusSuccess,
			DurationMs: time.Since(start).Milliseconds(),
			Output:     "byte-identical match",
			Data:       data,
		}, pctx, nil
	}

	return plugin.Result{
		PluginID:   p.id,
		PluginName: p.Name(),
		Status:     plugin.StatusFailure,
		DurationMs: time.Since(start).Milliseconds(),
		Err:        "objdiff: differences remain",
		Data:       data,
	}, pctx, nil
}

func (p *ObjDiffPlugin) failure(start time.Time, msg string) plugin.Result {
	return plugin.Result{
		PluginID:   p.id,
		PluginName: p.Name(),
		Status:     plugin.StatusFailure,
		DurationMs: time.Since(start).Milliseconds(),
		Err:        msg,
	}
}
