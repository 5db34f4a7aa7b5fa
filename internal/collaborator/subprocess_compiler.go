package collaborator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SubprocessCompiler runs a configurable shell command against a
// candidate C source file and reports success purely from the exit code,
// with combined stdout/stderr captured as compiler feedback.
type SubprocessCompiler struct {
	// Command is a shell command template run via `sh -c`. The literal
	// tokens {{source}}, {{context}}, and {{obj}} are substituted with the
	// generated-source path, the context path, and the desired object
	// output path respectively before execution.
	Command string
	WorkDir string
}

// NewSubprocessCompiler returns a SubprocessCompiler that runs command in
// workDir.
func NewSubprocessCompiler(command, workDir string) *SubprocessCompiler {
	return &SubprocessCompiler{Command: command, WorkDir: workDir}
}

// Compile writes cSource to a scratch file, runs the configured command,
// and reports CompileResult from the exit code and combined output: zero
// exit is a pass, non-zero is a failure with the combined output as
// feedback.
func (c *SubprocessCompiler) Compile(ctx context.Context, functionName, cSource, contextContentOrPath string, flags []string) (CompileResult, error) {
	sourcePath, err := writeScratchFile(c.WorkDir, functionName+".c", cSource)
	if err != nil {
		return CompileResult{}, fmt.Errorf("collaborator: writing source: %w", err)
	}
	objPath := sourcePath + ".o"

	script := substitute(c.Command, sourcePath, contextContentOrPath, objPath)
	if len(flags) > 0 {
		script = script + " " + strings.Join(flags, " ")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = c.WorkDir

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	if err := cmd.Run(); err != nil {
		return CompileResult{
			Success:           false,
			CompilationErrors: []string{combined.String()},
			ErrorMessage:      err.Error(),
		}, nil
	}

	return CompileResult{Success: true, ObjPath: objPath}, nil
}

func substitute(command, sourcePath, contextPath, objPath string) string {
	replacer := strings.NewReplacer(
		"{{source}}", sourcePath,
		"{{context}}", contextPath,
		"{{obj}}", objPath,
	)
	return replacer.Replace(command)
}

func writeScratchFile(dir, name, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
