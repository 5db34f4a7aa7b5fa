package agent

import "time"

// ClaudePreset is the built-in CommandConfig for the Claude Code CLI run
// in streaming-JSON mode.
var ClaudePreset = CommandConfig{
	Name:            "claude",
	Binary:          "claude",
	PromptFlag:      "-p",
	ResumeFlag:      "--resume",
	StreamFlags:     []string{"--output-format", "stream-json"},
	PermissionFlags: []string{"--dangerously-skip-permissions"},
}

// GenericPreset is a built-in CommandConfig for any CLI agent that accepts
// a positional prompt and emits NDJSON on stdout.
var GenericPreset = CommandConfig{
	Name:        "generic",
	Binary:      "agent-cli",
	ResumeFlag:  "--resume",
	StreamFlags: []string{"--json"},
	StripANSI:   true,
}

// RegisterBuiltins registers the built-in transport presets on reg.
func RegisterBuiltins(reg *Registry, timeout time.Duration) {
	reg.Register("claude", func() (Transport, error) {
		return NewSubprocessTransport(ClaudePreset, WithTimeout(timeout)), nil
	})
	reg.Register("generic", func() (Transport, error) {
		return NewSubprocessTransport(GenericPreset, WithTimeout(timeout)), nil
	})
}
