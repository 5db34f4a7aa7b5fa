// Package plugin defines the polymorphic step abstraction that the
// orchestration engine drives, and the value types that flow between a
// pipeline run and its plugins.
package plugin

import (
	"context"
	"time"
)

// Status is the terminal disposition of a single plugin execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// M2CContext is the hand-off payload produced when the programmatic-flow
// fails and the AI-powered flow must regenerate.
type M2CContext struct {
	GeneratedCode    string
	CompilationError string
	ObjDiffOutput    string
}

// Context is the mutable per-attempt carrier threaded through a pipeline
// run. Plugins receive a Context and return a (possibly extended) Context;
// callers must treat the returned value as the one to thread forward and
// must not assume the plugin mutated the argument in place.
type Context struct {
	PromptPath       string
	PromptContent    string
	FunctionName     string
	TargetObjectPath string
	Asm              string

	AttemptNumber int
	MaxRetries    int

	PreviousAttempts []map[string]Result

	Config any

	ContextContent  string
	ContextFilePath string

	GeneratedCode string

	// CompiledObjPath is the object file path produced by the most recent
	// successful compile within the current attempt, threaded from a
	// Compiler-adapter plugin to a Scorer-adapter plugin later in the same
	// sequence.
	CompiledObjPath string

	M2CContext *M2CContext

	// RetryFeedback is the text PrepareRetry computes for the next attempt
	// (stall-recovery notice and/or best-attempt reminder). It is
	// plugin-extended context, not an immutable input.
	RetryFeedback string
}

// Clone returns a copy of ctx with its own PreviousAttempts slice and
// per-attempt maps, so one attempt never observes another's unpublished
// mutations.
func (c Context) Clone() Context {
	clone := c
	if c.PreviousAttempts != nil {
		clone.PreviousAttempts = make([]map[string]Result, len(c.PreviousAttempts))
		for i, attempt := range c.PreviousAttempts {
			m := make(map[string]Result, len(attempt))
			for id, r := range attempt {
				m[id] = r
			}
			clone.PreviousAttempts[i] = m
		}
	}
	return clone
}

// Result is the immutable outcome of a single plugin execution.
type Result struct {
	PluginID   string
	PluginName string
	Status     Status
	DurationMs int64
	Output     string
	Err        string
	Data       any
	Sections   []ReportSection
}

// ReportSection is a decorative, report-rendering fragment. The engine
// never consumes these; they exist solely for optional external rendering.
type ReportSection struct {
	Title string
	Body  string
}

// AttemptResult is the immutable outcome of one full pass through a
// plugin sequence (one attempt of the AI-powered flow, or the single pass
// of the setup-flow / programmatic-flow).
type AttemptResult struct {
	AttemptNumber  int
	PluginResults  []Result
	Success        bool
	DurationMs     int64
	StartTimestamp time.Time
}

// BackgroundTaskResult is the immutable outcome of one background search
// task.
type BackgroundTaskResult struct {
	TaskID             string
	PluginID           string
	Success            bool
	DurationMs         int64
	StartTimestamp     time.Time
	TriggeredByAttempt int
	Data               any
}

// PipelineRunResult is the immutable, per-prompt outcome of RunPipeline.
type PipelineRunResult struct {
	PromptPath       string
	FunctionName     string
	Success          bool
	Attempts         []AttemptResult
	SetupFlow        AttemptResult
	ProgrammaticFlow *AttemptResult
	BackgroundTasks  []BackgroundTaskResult
	MatchSource      string
	TotalDurationMs  int64
}

// Plugin is a single step in a flow. Execute may suspend on I/O; it must
// not swallow a PipelineAbort raised from inside it.
type Plugin interface {
	ID() string
	Name() string
	Execute(ctx context.Context, pctx Context) (Result, Context, error)
}

// RetryPreparer is an optional capability: a pure transformation invoked
// before attempts 2..N of the AI-powered flow only.
type RetryPreparer interface {
	PrepareRetry(ctx context.Context, pctx Context, previousAttempts []map[string]Result) (Context, error)
}

// ForegroundAbortable is an optional capability: installs a cancellation
// source the plugin must honor during long I/O.
type ForegroundAbortable interface {
	SetForegroundAbortSignal(signal *AbortSignal)
}

// ReportSectioner is an optional, purely decorative capability.
type ReportSectioner interface {
	GetReportSections(result Result, pctx Context) []ReportSection
}

// BackgroundCapable is an optional capability: plugins with this exposed
// participate in the background race (see package background).
type BackgroundCapable interface {
	Background() BackgroundCapability
}

// SpawnConfig is the immutable configuration handed to a background task
// when it is spawned. Background tasks never see the live foreground
// Context; they only ever see this snapshot.
type SpawnConfig struct {
	PluginID string
	Payload  any
}

// BackgroundCapability is the background-race surface a plugin exposes.
type BackgroundCapability interface {
	// ShouldSpawn decides, after a foreground attempt completes, whether to
	// start a new background task. A nil SpawnConfig means "do not spawn".
	ShouldSpawn(pctx Context) *SpawnConfig
	// Run executes one background task to completion or cancellation.
	Run(ctx context.Context, cfg SpawnConfig) (any, error)
	// IsSuccess reports whether a background task's result counts as a
	// match.
	IsSuccess(result any) bool
	// ToBackgroundTaskResult wraps a raw result with bookkeeping metadata.
	ToBackgroundTaskResult(result any, meta TaskMeta) BackgroundTaskResult
}

// TaskMeta is the bookkeeping the coordinator attaches to every background
// task result.
type TaskMeta struct {
	TaskID             string
	DurationMs         int64
	TriggeredByAttempt int
	StartTimestamp     time.Time
}
