package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
	"github.com/vela-forge/pipelinerunner/internal/workspace"
)

func TestSetupPlugin_Execute_MaterializesContextFile(t *testing.T) {
	dir := t.TempDir()
	contextPath := filepath.Join(dir, "context.md")
	require.NoError(t, os.WriteFile(contextPath, []byte("shared headers"), 0o644))

	ws := workspace.NewManager(filepath.Join(dir, "scratch"))
	p := NewSetupPlugin("context-setup", "Context Setup", ws, contextPath)

	pctx := plugin.Context{FunctionName: "target_fn"}
	result, outCtx, err := p.Execute(context.Background(), pctx)

	require.NoError(t, err)
	require.Equal(t, plugin.StatusSuccess, result.Status)
	require.Equal(t, "shared headers", outCtx.ContextContent)
	require.FileExists(t, outCtx.ContextFilePath)
}

func TestSetupPlugin_Execute_MissingContextFileFails(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.NewManager(filepath.Join(dir, "scratch"))
	p := NewSetupPlugin("context-setup", "Context Setup", ws, filepath.Join(dir, "does-not-exist.md"))

	pctx := plugin.Context{FunctionName: "target_fn"}
	result, _, err := p.Execute(context.Background(), pctx)

	require.NoError(t, err)
	require.Equal(t, plugin.StatusFailure, result.Status)
	require.Contains(t, result.Err, "reading context file")
}

func TestSetupPlugin_Execute_EmptyContextPathSkipsRead(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.NewManager(filepath.Join(dir, "scratch"))
	p := NewSetupPlugin("context-setup", "Context Setup", ws, "")

	pctx := plugin.Context{FunctionName: "target_fn"}
	result, outCtx, err := p.Execute(context.Background(), pctx)

	require.NoError(t, err)
	require.Equal(t, plugin.StatusSuccess, result.Status)
	require.Empty(t, outCtx.ContextContent)
}

func TestSetupPlugin_Execute_FallsBackToPromptIDWhenFunctionNameEmpty(t *testing.T) {
	dir := t.TempDir()
	ws := workspace.NewManager(filepath.Join(dir, "scratch"))
	p := NewSetupPlugin("context-setup", "Context Setup", ws, "")

	_, outCtx, err := p.Execute(context.Background(), plugin.Context{})
	require.NoError(t, err)
	require.True(t, ws.Exists("prompt"))
	require.Equal(t, filepath.Join(dir, "scratch", "prompt", "context"), outCtx.ContextFilePath)
}
