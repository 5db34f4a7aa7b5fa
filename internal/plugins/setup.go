// Package plugins supplies concrete plugin.Plugin adapters over the
// external collaborators: a setup-flow context-materialization plugin, a
// Compiler/Scorer adapter pair reused by both the programmatic-flow and
// the AI-powered flow, a programmatic (algorithmic) decompile plugin, and
// a background-capable mutation-search plugin.
//
// Every collaborator interface in internal/collaborator has at least one
// plugin here that drives it through the engine.
package plugins

import (
	"context"
	"os"
	"time"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
	"github.com/vela-forge/pipelinerunner/internal/workspace"
)

// SetupPlugin materializes a fixed auxiliary context file (e.g. project
// headers) into the per-prompt scratch directory via workspace.Manager,
// populating pctx.ContextContent/ContextFilePath for every later phase.
type SetupPlugin struct {
	id          string
	name        string
	workspace   *workspace.Manager
	contextPath string
}

// NewSetupPlugin builds a SetupPlugin that reads contextPath once per
// Execute and materializes it under ws, keyed by the prompt's function
// name as the scratch directory id.
func NewSetupPlugin(id, name string, ws *workspace.Manager, contextPath string) *SetupPlugin {
	return &SetupPlugin{id: id, name: name, workspace: ws, contextPath: contextPath}
}

func (p *SetupPlugin) ID() string   { return p.id }
func (p *SetupPlugin) Name() string { return p.name }

func (p *SetupPlugin) Execute(ctx context.Context, pctx plugin.Context) (plugin.Result, plugin.Context, error) {
	start := time.Now()

	var content string
	if p.contextPath != "" {
		data, err := os.ReadFile(p.contextPath)
		if err != nil {
			return plugin.Result{
				PluginID:   p.id,
				PluginName: p.name,
				Status:     plugin.StatusFailure,
				DurationMs: time.Since(start).Milliseconds(),
				Err:        "reading context file: " + err.Error(),
			}, pctx, nil
		}
		content = string(data)
	}

	id := pctx.FunctionName
	if id == "" {
		id = "prompt"
	}
	filePath, err := p.workspace.Create(id, content)
	if err != nil {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.name,
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Err:        "materializing context: " + err.Error(),
		}, pctx, nil
	}

	pctx.ContextContent = content
	pctx.ContextFilePath = filePath

	return plugin.Result{
		PluginID:   p.id,
		PluginName: p.name,
		Status:     plugin.StatusSuccess,
		DurationMs: time.Since(start).Milliseconds(),
		Output:     filePath,
	}, pctx, nil
}
