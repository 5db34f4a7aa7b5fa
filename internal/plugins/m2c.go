package plugins

import (
	"context"
	"time"

	"github.com/vela-forge/pipelinerunner/internal/collaborator"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// DecompilePlugin wraps a collaborator.Decompiler as the programmatic-flow
// plugin: a one-shot, non-LLM attempt that, combined with
// CompilerPlugin/ObjDiffPlugin in the same sequence, can short-circuit
// the AI-powered flow entirely.
type DecompilePlugin struct {
	id         string
	decompiler collaborator.Decompiler
}

// NewDecompilePlugin builds a DecompilePlugin.
func NewDecompilePlugin(id string, decompiler collaborator.Decompiler) *DecompilePlugin {
	return &DecompilePlugin{id: id, decompiler: decompiler}
}

func (p *DecompilePlugin) ID() string   { return p.id }
func (p *DecompilePlugin) Name() string { return "Algorithmic Decompiler" }

func (p *DecompilePlugin) Execute(ctx context.Context, pctx plugin.Context) (plugin.Result, plugin.Context, error) {
	start := time.Now()

	code, ok, err := p.decompiler.Decompile(ctx, pctx.FunctionName, pctx.Asm)
	if err != nil {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.Name(),
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Err:        "decompiler: " + err.Error(),
		}, pctx, nil
	}
	if !ok {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.Name(),
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Err:        "decompiler: no candidate produced",
		}, pctx, nil
	}

	pctx.GeneratedCode = code
	return plugin.Result{
		PluginID:   p.id,
		PluginName: p.Name(),
		Status:     plugin.StatusSuccess,
		DurationMs: time.Since(start).Milliseconds(),
		Output:     code,
	}, pctx, nil
}
