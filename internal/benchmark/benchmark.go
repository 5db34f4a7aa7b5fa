// Package benchmark drives a flat per-prompt benchmark pass: run the
// pipeline for every prompt in order, bubble a PipelineAbort immediately
// with partial results preserved, and report the aggregate summary.
package benchmark

import (
	"context"
	"errors"
	"fmt"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// PipelineRunner abstracts the orchestrator for benchmark use.
type PipelineRunner interface {
	RunPipeline(ctx context.Context, in PipelineInput) (plugin.PipelineRunResult, error)
}

// PipelineInput mirrors orchestrator.Manager.RunPipeline's input shape;
// kept as a separate type here so this package does not import
// orchestrator directly.
type PipelineInput struct {
	PromptPath       string
	PromptContent    string
	FunctionName     string
	TargetObjectPath string
	Asm              string
	MaxRetries       int
	Config           any
}

// Prompt is one unit of benchmark work.
type Prompt struct {
	Path             string
	Content          string
	FunctionName     string
	TargetObjectPath string
	Asm              string
}

// Callback receives benchmark lifecycle events for progress reporting.
type Callback interface {
	OnPromptStart(path string)
	OnPromptComplete(result plugin.PipelineRunResult)
	OnPromptAbort(path string, err error)
}

// Summary is the aggregate outcome across all prompts in a run.
type Summary struct {
	TotalPrompts      int
	SuccessfulPrompts int
	SuccessRatePct    float64
	AvgAttempts       float64
	TotalDurationMs   int64
}

// Runner drives a benchmark pass over a list of prompts.
type Runner struct {
	pipeline   PipelineRunner
	callback   Callback
	maxRetries int
}

// NewRunner creates a benchmark Runner with the given pipeline and
// maxRetries default, applied to every prompt.
func NewRunner(pipeline PipelineRunner, callback Callback, maxRetries int) *Runner {
	return &Runner{pipeline: pipeline, callback: callback, maxRetries: maxRetries}
}

// Run executes the pipeline once per prompt in order, stopping
// immediately if any prompt's pipeline run raises a PipelineAbort, and
// returns every completed result plus the aggregate Summary. already maps
// prompt paths to results from a prior
// checkpointed invocation; those prompts are not re-dispatched and their
// prior results are carried forward in prompt order. Pass nil for a fresh
// run.
func (r *Runner) Run(ctx context.Context, prompts []Prompt, already map[string]plugin.PipelineRunResult) ([]plugin.PipelineRunResult, Summary, error) {
	results := make([]plugin.PipelineRunResult, 0, len(prompts))

	for _, p := range prompts {
		if prior, ok := already[p.Path]; ok {
			results = append(results, prior)
			continue
		}

		r.callback.OnPromptStart(p.Path)

		result, err := r.pipeline.RunPipeline(ctx, PipelineInput{
			PromptPath:       p.Path,
			PromptContent:    p.Content,
			FunctionName:     p.FunctionName,
			TargetObjectPath: p.TargetObjectPath,
			Asm:              p.Asm,
			MaxRetries:       r.maxRetries,
		})
		if err != nil {
			if errors.Is(err, plugin.ErrPipelineAbort) {
				r.callback.OnPromptAbort(p.Path, err)
				return results, summarize(results), fmt.Errorf("benchmark: aborted on %s: %w", p.Path, err)
			}
			// Any other error escaping the pipeline is appended as a
			// synthesized setup-flow failure; iteration continues with the
			// next prompt.
			result = syntheticFailure(p.Path, p.FunctionName, err)
			results = append(results, result)
			r.callback.OnPromptComplete(result)
			continue
		}

		results = append(results, result)
		r.callback.OnPromptComplete(result)
	}

	return results, summarize(results), nil
}

// syntheticFailure encodes an unexpected error escaping the pipeline as a
// single synthetic plugin failure under the setup-flow slot, so the
// prompt's slot in results is never simply missing.
func syntheticFailure(path, functionName string, err error) plugin.PipelineRunResult {
	return plugin.PipelineRunResult{
		PromptPath:   path,
		FunctionName: functionName,
		Success:      false,
		SetupFlow: plugin.AttemptResult{
			PluginResults: []plugin.Result{{
				PluginID:   "benchmark",
				PluginName: "benchmark driver",
				Status:     plugin.StatusFailure,
				Err:        fmt.Sprintf("Unexpected error: %s", err.Error()),
			}},
			Success: false,
		},
	}
}

func summarize(results []plugin.PipelineRunResult) Summary {
	s := Summary{TotalPrompts: len(results)}
	if len(results) == 0 {
		return s
	}

	var totalAttempts int
	for _, r := range results {
		if r.Success {
			s.SuccessfulPrompts++
		}
		totalAttempts += len(r.Attempts)
		s.TotalDurationMs += r.TotalDurationMs
	}

	s.SuccessRatePct = float64(s.SuccessfulPrompts) / float64(s.TotalPrompts) * 100
	s.AvgAttempts = float64(totalAttempts) / float64(s.TotalPrompts)
	return s
}
