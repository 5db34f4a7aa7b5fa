// Package orchestrator implements the pipeline engine: a three-phase,
// retry-driven execution model that threads a mutable Context through
// sequential plugin chains and races a background search pool against a
// bounded foreground retry loop.
//
// A prompt run proceeds through a setup-flow (fatal on failure), an
// optional programmatic-flow (success short-circuits), and an AI-powered
// flow (bounded retries over the main-plugin sequence, with background
// tasks racing the foreground).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vela-forge/pipelinerunner/internal/background"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// Manager registers plugins into the three ordered buckets and runs the
// full pipeline for one prompt at a time.
type Manager struct {
	log          *zap.Logger
	setupFlow    []plugin.Plugin
	programmatic []plugin.Plugin
	mainPlugins  []plugin.Plugin
	coordinator  *background.Coordinator
	onStatus     StatusCallback
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger installs a structured logger.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithSetupFlow registers the setup-flow plugin sequence.
func WithSetupFlow(plugins ...plugin.Plugin) Option {
	return func(m *Manager) { m.setupFlow = plugins }
}

// WithProgrammaticFlow registers the programmatic-flow plugin sequence.
func WithProgrammaticFlow(plugins ...plugin.Plugin) Option {
	return func(m *Manager) { m.programmatic = plugins }
}

// WithMainPlugins registers the AI-powered flow's retry-body plugins.
func WithMainPlugins(plugins ...plugin.Plugin) Option {
	return func(m *Manager) { m.mainPlugins = plugins }
}

// WithCoordinator installs a BackgroundTaskCoordinator. If omitted, the
// AI-powered flow runs with no background race.
func WithCoordinator(c *background.Coordinator) Option {
	return func(m *Manager) { m.coordinator = c }
}

// WithStatusCallback installs a progress callback.
func WithStatusCallback(cb StatusCallback) Option {
	return func(m *Manager) { m.onStatus = cb }
}

// New constructs a Manager from the given options.
func New(opts ...Option) *Manager {
	m := &Manager{log: zap.NewNop(), onStatus: func(StatusUpdate) {}}
	for _, opt := range opts {
		opt(m)
	}
	if m.onStatus == nil {
		m.onStatus = func(StatusUpdate) {}
	}
	return m
}

// RunAttempt executes plugins sequentially, threading the returned
// context through each, and produces an AttemptResult. A PipelineAbort
// raised by any plugin is re-raised (returned as error); every other
// plugin-declared or ordinary failure is recorded in the result, never
// returned as an error.
func (m *Manager) RunAttempt(ctx context.Context, pctx plugin.Context, attemptNumber int, plugins []plugin.Plugin) (plugin.AttemptResult, plugin.Context, error) {
	start := time.Now()
	running := pctx.Clone()

	results := make([]plugin.Result, 0, len(plugins))
	failed := false

	for _, p := range plugins {
		if failed {
			results = append(results, plugin.Result{
				PluginID:   p.ID(),
				PluginName: p.Name(),
				Status:     plugin.StatusSkipped,
				DurationMs: 0,
				Output:     "Skipped due to previous plugin failure",
			})
			continue
		}

		stepStart := time.Now()
		result, next, err := p.Execute(ctx, running)
		if err != nil {
			var abort *plugin.PipelineAbort
			if errors.As(err, &abort) {
				return plugin.AttemptResult{}, running, abort
			}
			result = plugin.Result{
				PluginID:   p.ID(),
				PluginName: p.Name(),
				Status:     plugin.StatusFailure,
				DurationMs: time.Since(stepStart).Milliseconds(),
				Err:        fmt.Sprintf("Unexpected error: %s", err.Error()),
			}
			failed = true
		} else {
			running = next
			if result.Status == plugin.StatusFailure {
				failed = true
			}
		}

		results = append(results, result)
	}

	attempt := plugin.AttemptResult{
		AttemptNumber:  attemptNumber,
		PluginResults:  results,
		Success:        !failed,
		DurationMs:     time.Since(start).Milliseconds(),
		StartTimestamp: start,
	}
	return attempt, running, nil
}

// PipelineInput is the per-prompt input to RunPipeline.
type PipelineInput struct {
	PromptPath       string
	PromptContent    string
	FunctionName     string
	TargetObjectPath string
	Asm              string
	MaxRetries       int
	Config           any
}

// RunPipeline runs the three phases in order for a single prompt. A
// canceled ctx (e.g. SIGINT via signal.NotifyContext) is surfaced as a
// PipelineAbort, so an interrupt halts the whole benchmark with partial
// results rather than burning the remaining retry budget on a dead context.
func (m *Manager) RunPipeline(ctx context.Context, in PipelineInput) (plugin.PipelineRunResult, error) {
	if err := ctx.Err(); err != nil {
		return plugin.PipelineRunResult{}, plugin.NewPipelineAbort("interrupted: " + err.Error())
	}

	start := time.Now()
	pctx := plugin.Context{
		PromptPath:       in.PromptPath,
		PromptContent:    in.PromptContent,
		FunctionName:     in.FunctionName,
		TargetObjectPath: in.TargetObjectPath,
		Asm:              in.Asm,
		MaxRetries:       in.MaxRetries,
		Config:           in.Config,
	}

	// Phase A — setup-flow.
	m.onStatus(StatusUpdate{Phase: PhaseSetup, PromptPath: in.PromptPath, Message: "starting setup-flow"})
	setupResult, nextCtx, err := m.RunAttempt(ctx, pctx, 0, m.setupFlow)
	if err != nil {
		return plugin.PipelineRunResult{}, err
	}
	if !setupResult.Success {
		return plugin.PipelineRunResult{
			PromptPath:      in.PromptPath,
			FunctionName:    in.FunctionName,
			Success:         false,
			Attempts:        nil,
			SetupFlow:       setupResult,
			TotalDurationMs: time.Since(start).Milliseconds(),
		}, nil
	}
	pctx = nextCtx

	// Phase B — programmatic-flow.
	var programmaticResult *plugin.AttemptResult
	if len(m.programmatic) > 0 {
		m.onStatus(StatusUpdate{Phase: PhaseProgrammatic, PromptPath: in.PromptPath, Message: "starting programmatic-flow"})
		pResult, pNextCtx, err := m.RunAttempt(ctx, pctx, 0, m.programmatic)
		if err != nil {
			return plugin.PipelineRunResult{}, err
		}
		programmaticResult = &pResult
		if pResult.Success {
			return plugin.PipelineRunResult{
				PromptPath:       in.PromptPath,
				FunctionName:     in.FunctionName,
				Success:          true,
				Attempts:         nil,
				SetupFlow:        setupResult,
				ProgrammaticFlow: programmaticResult,
				MatchSource:      "programmatic-flow",
				TotalDurationMs:  time.Since(start).Milliseconds(),
			}, nil
		}

		pctx = pNextCtx
		if pctx.M2CContext == nil {
			pctx.M2CContext = &plugin.M2CContext{}
		}
		if compiler, ok := findResult(pResult, "compiler"); ok && compiler.Status == plugin.StatusFailure {
			pctx.M2CContext.CompilationError = firstNonEmpty(compiler.Output, compiler.Err)
		} else if objdiff, ok := findResult(pResult, "objdiff"); ok {
			pctx.M2CContext.ObjDiffOutput = firstNonEmpty(objdiff.Output, objdiff.Err)
		}
		pctx.GeneratedCode = ""
	}

	// Phase C — AI-powered flow with background race.
	runResult, err := m.runAIFlow(ctx, in, pctx, setupResult, programmaticResult, start)
	if err != nil {
		return plugin.PipelineRunResult{}, err
	}
	return runResult, nil
}

func (m *Manager) runAIFlow(ctx context.Context, in PipelineInput, pctx plugin.Context, setupResult plugin.AttemptResult, programmaticResult *plugin.AttemptResult, start time.Time) (plugin.PipelineRunResult, error) {
	var mu sync.Mutex
	var backgroundMatchSource string

	if m.coordinator != nil {
		m.coordinator.CancelAll()
		m.coordinator.Reset()
		m.coordinator.OnSuccess(func(result plugin.BackgroundTaskResult) {
			mu.Lock()
			defer mu.Unlock()
			if backgroundMatchSource == "" {
				backgroundMatchSource = result.PluginID
			}
		})
		signal := m.coordinator.ForegroundAbortSignal()
		for _, p := range m.mainPlugins {
			if abortable, ok := p.(plugin.ForegroundAbortable); ok {
				abortable.SetForegroundAbortSignal(signal)
			}
		}
	}

	var attempts []plugin.AttemptResult
	success := false
	matchSource := ""

	maxRetries := in.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for attemptNumber := 1; attemptNumber <= maxRetries; attemptNumber++ {
		if err := ctx.Err(); err != nil {
			if m.coordinator != nil {
				m.coordinator.CancelAll()
			}
			return plugin.PipelineRunResult{}, plugin.NewPipelineAbort("interrupted: " + err.Error())
		}

		mu.Lock()
		bms := backgroundMatchSource
		mu.Unlock()
		if bms != "" {
			m.log.Info("background task matched, preempting foreground",
				zap.String("prompt", in.PromptPath),
				zap.String("plugin", bms),
				zap.Int("skipped_at_attempt", attemptNumber))
			success = true
			matchSource = bms
			break
		}

		pctx.AttemptNumber = attemptNumber
		m.onStatus(StatusUpdate{Phase: PhaseAI, PromptPath: in.PromptPath, AttemptNumber: attemptNumber, Message: "running attempt"})

		attemptResult, nextCtx, err := m.RunAttempt(ctx, pctx, attemptNumber, m.mainPlugins)
		if err != nil {
			if m.coordinator != nil {
				m.coordinator.CancelAll()
			}
			return plugin.PipelineRunResult{}, err
		}
		pctx = nextCtx
		attempts = append(attempts, attemptResult)

		willRetry := !attemptResult.Success && attemptNumber < maxRetries

		if attemptResult.Success {
			success = true
			matchSource = "claude"
			break
		}

		if m.coordinator != nil {
			m.coordinator.OnAttemptComplete(background.OnAttemptCompleteInput{
				AttemptNumber: attemptNumber,
				WillRetry:     willRetry,
				Context:       pctx,
				AttemptResult: attemptResult,
			})
		}

		if willRetry {
			pctx.PreviousAttempts = append(pctx.PreviousAttempts, resultMap(attemptResult))
			for _, p := range m.mainPlugins {
				preparer, ok := p.(plugin.RetryPreparer)
				if !ok {
					continue
				}
				next, err := preparer.PrepareRetry(ctx, pctx, pctx.PreviousAttempts)
				if err != nil {
					var abort *plugin.PipelineAbort
					if errors.As(err, &abort) {
						if m.coordinator != nil {
							m.coordinator.CancelAll()
						}
						return plugin.PipelineRunResult{}, abort
					}
					continue
				}
				pctx = next
			}
		}
	}

	var backgroundTasks []plugin.BackgroundTaskResult
	if m.coordinator != nil {
		m.coordinator.CancelAll()
		backgroundTasks = m.coordinator.Results()

		mu.Lock()
		bms := backgroundMatchSource
		mu.Unlock()
		// A task may settle during cancellation; a late success still wins
		// the prompt when the foreground failed.
		if bms != "" && !success {
			m.log.Info("background task matched during cancellation",
				zap.String("prompt", in.PromptPath),
				zap.String("plugin", bms))
			success = true
			matchSource = bms
		}
	}

	return plugin.PipelineRunResult{
		PromptPath:       in.PromptPath,
		FunctionName:     in.FunctionName,
		Success:          success,
		Attempts:         attempts,
		SetupFlow:        setupResult,
		ProgrammaticFlow: programmaticResult,
		BackgroundTasks:  backgroundTasks,
		MatchSource:      matchSource,
		TotalDurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

func resultMap(attempt plugin.AttemptResult) map[string]plugin.Result {
	out := make(map[string]plugin.Result)
	for _, r := range attempt.PluginResults {
		if r.Status == plugin.StatusSkipped {
			continue
		}
		out[r.PluginID] = r
	}
	return out
}

func findResult(attempt plugin.AttemptResult, pluginID string) (plugin.Result, bool) {
	for _, r := range attempt.PluginResults {
		if r.PluginID == pluginID {
			return r, true
		}
	}
	return plugin.Result{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
