package feedback

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

func objdiffAttempt(count int, code string) map[string]plugin.Result {
	return map[string]plugin.Result{
		"objdiff": {
			PluginID: "objdiff",
			Status:   plugin.StatusFailure,
			Data:     ObjDiffData{DifferenceCount: count, Code: code},
		},
	}
}

func TestBuilder_Build(t *testing.T) {
	t.Run("no previous attempts produces no feedback", func(t *testing.T) {
		b := NewBuilder(3)
		got, err := b.Build(nil)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("attempt missing objdiff result is skipped", func(t *testing.T) {
		b := NewBuilder(3)
		attempts := []map[string]plugin.Result{
			{"compiler": {PluginID: "compiler", Status: plugin.StatusFailure}},
		}
		got, err := b.Build(attempts)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("regression from best attempt renders a best-attempt reminder", func(t *testing.T) {
		b := NewBuilder(10) // high threshold so stall never fires here
		attempts := []map[string]plugin.Result{
			objdiffAttempt(5, "int best(void) { return 1; }"),
			objdiffAttempt(9, "int worse(void) { return 2; }"),
		}
		got, err := b.Build(attempts)
		require.NoError(t, err)
		require.Contains(t, got, "REMINDER")
		require.Contains(t, got, "9")
		require.Contains(t, got, "5")
		require.Contains(t, got, "int best(void)")
	})

	t.Run("improving attempts produce no reminder", func(t *testing.T) {
		b := NewBuilder(10)
		attempts := []map[string]plugin.Result{
			objdiffAttempt(9, "a"),
			objdiffAttempt(5, "b"),
		}
		got, err := b.Build(attempts)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("stall window of non-improving attempts triggers once", func(t *testing.T) {
		b := NewBuilder(3)
		attempts := []map[string]plugin.Result{
			objdiffAttempt(8, "a"),
			objdiffAttempt(8, "b"),
			objdiffAttempt(8, "c"),
		}
		got, err := b.Build(attempts)
		require.NoError(t, err)
		require.Contains(t, got, "STALL DETECTED")

		// A further non-improving attempt before another full window
		// shouldn't retrigger the stall notice.
		attempts = append(attempts, objdiffAttempt(8, "d"))
		got2, err := b.Build(attempts)
		require.NoError(t, err)
		require.NotContains(t, got2, "STALL DETECTED")
	})

	t.Run("stall window broken by an improvement does not trigger", func(t *testing.T) {
		b := NewBuilder(3)
		attempts := []map[string]plugin.Result{
			objdiffAttempt(8, "a"),
			objdiffAttempt(8, "b"),
			objdiffAttempt(3, "c"),
		}
		got, err := b.Build(attempts)
		require.NoError(t, err)
		require.NotContains(t, got, "STALL DETECTED")
	})
}

func TestNewBuilderFS_UsesProvidedTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		stallTemplateFile:       &fstest.MapFile{Data: []byte("CUSTOM STALL after {{.Count}} attempts")},
		bestAttemptTemplateFile: &fstest.MapFile{Data: []byte("CUSTOM REMINDER best={{.BestDifference}}")},
	}

	b, err := NewBuilderFS(2, fsys)
	require.NoError(t, err)

	attempts := []map[string]plugin.Result{
		objdiffAttempt(5, "a"),
		objdiffAttempt(9, "b"),
	}
	got, err := b.Build(attempts)
	require.NoError(t, err)
	require.Contains(t, got, "CUSTOM STALL after 2 attempts")
	require.Contains(t, got, "CUSTOM REMINDER best=5")
	require.NotContains(t, got, "STALL DETECTED")
}

func TestNewBuilderFS_OverlayFallsBackToEmbedded(t *testing.T) {
	localDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(localDir, stallTemplateFile),
		[]byte("LOCAL STALL {{.Count}}"), 0o644))

	b, err := NewBuilderFS(2, OverlayFS(localDir, Assets))
	require.NoError(t, err)

	attempts := []map[string]plugin.Result{
		objdiffAttempt(5, "int best(void) { return 1; }"),
		objdiffAttempt(9, "int worse(void) { return 2; }"),
	}
	got, err := b.Build(attempts)
	require.NoError(t, err)
	require.Contains(t, got, "LOCAL STALL 2", "the on-disk stall template must win")
	require.Contains(t, got, "REMINDER", "the reminder template must still come from the embedded assets")
}

func TestNewBuilderFS_MissingTemplateErrors(t *testing.T) {
	_, err := NewBuilderFS(3, fstest.MapFS{})
	require.Error(t, err)
	require.Contains(t, err.Error(), stallTemplateFile)
}
