package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 25, cfg.Global.MaxRetries)
	require.Equal(t, ".", cfg.Global.OutputDir)
	require.Equal(t, 3, cfg.Global.StallWindow)
	require.NotNil(t, cfg.Plugins)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Global, cfg.Global)
}

func TestLoad_EmptyFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().Global, cfg.Global)
}

func TestLoad_ParsesFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `
global:
  contextPath: ctx.md
  maxRetries: 10
  outputDir: out/
  promptsDir: prompts/
  compilerFlags: ["-O2", "-Wall"]
  stallWindow: 5
  metricsAddr: ":9090"
  templatesDir: tmpl/
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ctx.md", cfg.Global.ContextPath)
	require.Equal(t, 10, cfg.Global.MaxRetries)
	require.Equal(t, "out/", cfg.Global.OutputDir)
	require.Equal(t, []string{"-O2", "-Wall"}, cfg.Global.CompilerFlags)
	require.Equal(t, 5, cfg.Global.StallWindow)
	require.Equal(t, ":9090", cfg.Global.MetricsAddr)
	require.Equal(t, "tmpl/", cfg.Global.TemplatesDir)
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := "global:\n  bogusField: true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadLayered_LaterLayerOverridesEarlier(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	override := filepath.Join(dir, "override.yaml")

	require.NoError(t, os.WriteFile(base, []byte("global:\n  maxRetries: 10\n  outputDir: base-out\n"), 0o644))
	require.NoError(t, os.WriteFile(override, []byte("global:\n  maxRetries: 20\n"), 0o644))

	cfg, err := LoadLayered(base, override)
	require.NoError(t, err)
	require.Equal(t, 20, cfg.Global.MaxRetries, "override layer wins for maxRetries")
	require.Equal(t, "base-out", cfg.Global.OutputDir, "unset-in-override field keeps the base layer's value")
}

func TestLoadLayered_SkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.yaml")
	require.NoError(t, os.WriteFile(present, []byte("global:\n  maxRetries: 7\n"), 0o644))

	cfg, err := LoadLayered(filepath.Join(dir, "missing.yaml"), present)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Global.MaxRetries)
}

func TestLoadLayered_PluginsStanzaWholesaleReplace(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	override := filepath.Join(dir, "override.yaml")

	require.NoError(t, os.WriteFile(base, []byte("plugins:\n  claude:\n    model: haiku\n"), 0o644))
	require.NoError(t, os.WriteFile(override, []byte("plugins:\n  claude:\n    model: opus\n"), 0o644))

	cfg, err := LoadLayered(base, override)
	require.NoError(t, err)
	require.Contains(t, cfg.Plugins, "claude")

	var decoded struct {
		Model string `yaml:"model"`
	}
	node := cfg.Plugins["claude"]
	require.NoError(t, node.Decode(&decoded))
	require.Equal(t, "opus", decoded.Model)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Global.MaxRetries = -1
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Global.OutputDir = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Global.StallWindow = -1
	require.Error(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PIPELINERUNNER_MAX_RETRIES", "42")
	t.Setenv("PIPELINERUNNER_OUTPUT_DIR", "/tmp/out")
	t.Setenv("PIPELINERUNNER_PROMPTS_DIR", "/tmp/prompts")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, 42, cfg.Global.MaxRetries)
	require.Equal(t, "/tmp/out", cfg.Global.OutputDir)
	require.Equal(t, "/tmp/prompts", cfg.Global.PromptsDir)
}

func TestApplyEnv_InvalidMaxRetriesErrors(t *testing.T) {
	t.Setenv("PIPELINERUNNER_MAX_RETRIES", "not-a-number")

	cfg := DefaultConfig()
	require.Error(t, cfg.ApplyEnv())
}
