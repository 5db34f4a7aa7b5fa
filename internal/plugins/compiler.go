package plugins

import (
	"context"
	"strings"
	"time"

	"github.com/vela-forge/pipelinerunner/internal/collaborator"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// CompilerPlugin wraps a collaborator.Compiler as a plugin.Plugin. It can
// sit in both the programmatic-flow and the AI-powered flow's main-plugin
// sequence; the CLI registers it in the main-plugin sequence only.
type CompilerPlugin struct {
	id       string
	compiler collaborator.Compiler
	flags    []string
}

// NewCompilerPlugin builds a CompilerPlugin. id is conventionally
// "compiler" so the programmatic-flow's compilation-error hand-off finds
// its result.
func NewCompilerPlugin(id string, compiler collaborator.Compiler, flags []string) *CompilerPlugin {
	return &CompilerPlugin{id: id, compiler: compiler, flags: flags}
}

func (p *CompilerPlugin) ID() string   { return p.id }
func (p *CompilerPlugin) Name() string { return "Compiler" }

func (p *CompilerPlugin) Execute(ctx context.Context, pctx plugin.Context) (plugin.Result, plugin.Context, error) {
	start := time.Now()

	contextArg := pctx.ContextFilePath
	if contextArg == "" {
		contextArg = pctx.ContextContent
	}

	result, err := p.compiler.Compile(ctx, pctx.FunctionName, pctx.GeneratedCode, contextArg, p.flags)
	if err != nil {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.Name(),
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Err:        "compiler: " + err.Error(),
		}, pctx, nil
	}

	if !result.Success {
		pctx.CompiledObjPath = ""
		errText := result.ErrorMessage
		if errText == "" {
			errText = strings.Join(result.CompilationErrors, "\n")
		}
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.Name(),
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Output:     strings.Join(result.CompilationErrors, "\n"),
			Err:        errText,
			Data:       result,
		}, pctx, nil
	}

	pctx.CompiledObjPath = result.ObjPath
	return plugin.Result{
		PluginID:   p.id,
		PluginName: p.Name(),
		Status:     plugin.StatusSuccess,
		DurationMs: time.Since(start).Milliseconds(),
		Output:     result.ObjPath,
		Data:       result,
	}, pctx, nil
}
