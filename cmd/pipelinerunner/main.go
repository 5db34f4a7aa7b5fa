// Command pipelinerunner drives the matching-decompilation pipeline
// engine over a directory of prompts.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vela-forge/pipelinerunner/internal/agent"
	"github.com/vela-forge/pipelinerunner/internal/background"
	"github.com/vela-forge/pipelinerunner/internal/benchmark"
	"github.com/vela-forge/pipelinerunner/internal/collaborator"
	"github.com/vela-forge/pipelinerunner/internal/config"
	"github.com/vela-forge/pipelinerunner/internal/feedback"
	"github.com/vela-forge/pipelinerunner/internal/metrics"
	"github.com/vela-forge/pipelinerunner/internal/orchestrator"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
	pluginimpl "github.com/vela-forge/pipelinerunner/internal/plugins"
	"github.com/vela-forge/pipelinerunner/internal/prompt"
	"github.com/vela-forge/pipelinerunner/internal/session"
	"github.com/vela-forge/pipelinerunner/internal/state"
	"github.com/vela-forge/pipelinerunner/internal/workspace"
)

var version = "dev"

// CLI is the top-level command structure for pipelinerunner.
type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`
	Run     RunCmd           `cmd:"" help:"Run one benchmark pass over a prompts directory."`
	Resume  ResumeCmd        `cmd:"" help:"Resume a checkpointed benchmark run."`
	Plugins PluginsCmd       `cmd:"" help:"List registered plugin ids."`
}

// RunCmd runs a fresh benchmark pass.
type RunCmd struct {
	PromptsDir  string `help:"Directory of prompt records." default:"prompts"`
	OutputDir   string `help:"Directory to write results/checkpoints to." default:"."`
	MaxRetries  int    `help:"AI-powered flow retry cap." default:"25"`
	Config      string `help:"Path to a YAML config file." default:""`
	MetricsAddr string `help:"Optional address to serve Prometheus metrics on, e.g. :9090." default:""`
}

// ResumeCmd resumes a checkpointed benchmark run.
type ResumeCmd struct {
	RunID     string `arg:"" help:"RunID of the checkpointed benchmark to resume."`
	OutputDir string `help:"Directory holding the checkpoint/results." default:"."`
	Config    string `help:"Path to a YAML config file." default:""`
}

// PluginsCmd lists registered plugin ids as one sorted list.
type PluginsCmd struct {
	Config string `help:"Path to a YAML config file." default:""`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kong.Vars{"version": version})

	err := kctx.Run()
	if err == nil {
		os.Exit(0)
	}

	if _, ok := err.(*configError); ok {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// configError marks a failure during config load/validation so main can
// map it to exit code 2, distinct from an unexpected startup error
// (exit code 1).
type configError struct{ error }

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path == "" {
		c := config.DefaultConfig()
		cfg = &c
	} else {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, &configError{err}
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &configError{err}
	}
	return cfg, nil
}

// engine bundles everything construction needs to build a ready-to-run
// orchestrator.Manager, benchmark.Runner, and metrics registry, so Run and
// Resume share identical wiring.
type engine struct {
	log        *zap.Logger
	cfg        *config.Config
	mgr        *orchestrator.Manager
	metrics    *metrics.Registry
	registry   *plugin.Registry
	promptsDir string
}

// buildEngine wires the setup-flow, the AI-powered flow (Claude agent plus
// the subprocess compiler), and the background-task coordinator.
//
// Every plugin is registered into a plugin.Registry by id before
// construction, so "plugins" lists exactly what got wired and a future
// config-driven plugin selection has a single lookup point to extend.
//
// The programmatic-flow and objdiff-based success scoring need a
// Decompiler/Scorer respectively (internal/collaborator); this module ships
// no concrete adapter for either — see DESIGN.md — so a deployment that
// needs them registers its own collaborator.Decompiler/collaborator.Scorer/
// collaborator.MutationSearcher-backed plugin here. Out of the box,
// attempt success is judged by whether the generated source compiles
// cleanly.
func buildEngine(cfg *config.Config) (*engine, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	reg := metrics.New()
	ws := workspace.NewManager(filepath.Join(cfg.Global.OutputDir, "scratch"))
	compiler := collaborator.NewSubprocessCompiler("gcc -o {{obj}} -c {{source}}", filepath.Join(cfg.Global.OutputDir, "scratch"))
	transport := agent.NewSubprocessTransport(agent.ClaudePreset)
	cache := session.New()

	registry := plugin.NewRegistry()
	registry.Register("context-setup", func() (plugin.Plugin, error) {
		return pluginimpl.NewSetupPlugin("context-setup", "Context Setup", ws, cfg.Global.ContextPath), nil
	})
	registry.Register("compiler", func() (plugin.Plugin, error) {
		return pluginimpl.NewCompilerPlugin("compiler", compiler, cfg.Global.CompilerFlags), nil
	})
	agentOpts := []agent.PluginOption{agent.WithStallThreshold(cfg.Global.StallWindow)}
	if cfg.Global.TemplatesDir != "" {
		agentOpts = append(agentOpts, agent.WithTemplateFS(feedback.OverlayFS(cfg.Global.TemplatesDir, feedback.Assets)))
	}
	registry.Register("claude", func() (plugin.Plugin, error) {
		return agent.New("claude", "Claude Agent", transport, cache, agentOpts...), nil
	})

	setupPlugin, err := registry.New("context-setup")
	if err != nil {
		return nil, err
	}
	agentPlugin, err := registry.New("claude")
	if err != nil {
		return nil, err
	}
	compilerPlugin, err := registry.New("compiler")
	if err != nil {
		return nil, err
	}

	coordinator := background.New(log)

	mgr := orchestrator.New(
		orchestrator.WithLogger(log),
		orchestrator.WithSetupFlow(setupPlugin),
		orchestrator.WithMainPlugins(agentPlugin, compilerPlugin),
		orchestrator.WithCoordinator(coordinator),
		orchestrator.WithStatusCallback(orchestrator.NewZapStatusCallback(log)),
	)

	return &engine{
		log:        log,
		cfg:        cfg,
		mgr:        mgr,
		metrics:    reg,
		registry:   registry,
		promptsDir: cfg.Global.PromptsDir,
	}, nil
}

// pipelineAdapter narrows orchestrator.Manager to benchmark.PipelineRunner.
type pipelineAdapter struct{ mgr *orchestrator.Manager }

func (a pipelineAdapter) RunPipeline(ctx context.Context, in benchmark.PipelineInput) (plugin.PipelineRunResult, error) {
	return a.mgr.RunPipeline(ctx, orchestrator.PipelineInput{
		PromptPath:       in.PromptPath,
		PromptContent:    in.PromptContent,
		FunctionName:     in.FunctionName,
		TargetObjectPath: in.TargetObjectPath,
		Asm:              in.Asm,
		MaxRetries:       in.MaxRetries,
		Config:           in.Config,
	})
}

// metricsCallback layers metric recording over another benchmark callback:
// every finished prompt records its pipeline outcome, per-attempt
// success/duration, and background-task outcomes.
type metricsCallback struct {
	next benchmark.Callback
	reg  *metrics.Registry
}

func (c metricsCallback) OnPromptStart(path string) { c.next.OnPromptStart(path) }

func (c metricsCallback) OnPromptComplete(result plugin.PipelineRunResult) {
	c.reg.RecordPipeline(result.MatchSource)
	for _, a := range result.Attempts {
		c.reg.RecordAttempt(a.Success, float64(a.DurationMs)/1000.0)
	}
	for _, b := range result.BackgroundTasks {
		c.reg.RecordBackgroundTask(b.Success)
	}
	c.next.OnPromptComplete(result)
}

func (c metricsCallback) OnPromptAbort(path string, err error) { c.next.OnPromptAbort(path, err) }

type loggingCallback struct{ log *zap.Logger }

func (c loggingCallback) OnPromptStart(path string) {
	c.log.Info("prompt starting", zap.String("prompt", path))
}
func (c loggingCallback) OnPromptComplete(result plugin.PipelineRunResult) {
	c.log.Info("prompt complete",
		zap.String("prompt", result.PromptPath),
		zap.Bool("success", result.Success),
		zap.String("match_source", result.MatchSource),
	)
}
func (c loggingCallback) OnPromptAbort(path string, err error) {
	c.log.Warn("prompt aborted", zap.String("prompt", path), zap.Error(err))
}

func loadPrompts(dir string) ([]benchmark.Prompt, error) {
	loader := prompt.NewLoader(os.DirFS(dir), dir)
	records, err := loader.LoadAll()
	if err != nil {
		return nil, err
	}
	prompts := make([]benchmark.Prompt, len(records))
	for i, r := range records {
		prompts[i] = benchmark.Prompt{
			Path:             r.Path,
			Content:          r.Content,
			FunctionName:     r.FunctionName,
			TargetObjectPath: r.TargetObjectPath,
			Asm:              r.Asm,
		}
	}
	return prompts, nil
}

func summaryState(s benchmark.Summary) state.BenchmarkSummary {
	return state.BenchmarkSummary{
		TotalPrompts:      s.TotalPrompts,
		SuccessfulPrompts: s.SuccessfulPrompts,
		SuccessRatePct:    s.SuccessRatePct,
		AvgAttempts:       s.AvgAttempts,
		TotalDurationMs:   s.TotalDurationMs,
	}
}

// Run executes the run subcommand.
func (c *RunCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.PromptsDir != "" {
		cfg.Global.PromptsDir = c.PromptsDir
	}
	if c.OutputDir != "" {
		cfg.Global.OutputDir = c.OutputDir
	}
	if c.MaxRetries > 0 {
		cfg.Global.MaxRetries = c.MaxRetries
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.log.Sync() //nolint:errcheck

	metricsAddr := c.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Global.MetricsAddr
	}
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: eng.metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				eng.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	prompts, err := loadPrompts(eng.promptsDir)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}

	runID := uuid.NewString()
	callback := metricsCallback{next: loggingCallback{log: eng.log}, reg: eng.metrics}
	runner := benchmark.NewRunner(pipelineAdapter{mgr: eng.mgr}, callback, cfg.Global.MaxRetries)

	checkpoints := state.NewCheckpointStore(cfg.Global.OutputDir)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, summary, runErr := runner.Run(ctx, prompts, nil)

	bcfg := state.BenchmarkConfig{PromptsDir: eng.promptsDir, MaxRetries: cfg.Global.MaxRetries}

	if err := checkpoints.Save(state.BenchmarkCheckpoint{
		RunID:   runID,
		Config:  bcfg,
		Results: results,
	}); err != nil {
		eng.log.Warn("saving checkpoint", zap.Error(err))
	}

	store := state.NewResultStore(cfg.Global.OutputDir)
	if err := store.Save(state.BenchmarkRunResult{
		RunID:     runID,
		Timestamp: time.Now(),
		Config:    bcfg,
		Results:   results,
		Summary:   summaryState(summary),
	}); err != nil {
		eng.log.Warn("saving result", zap.Error(err))
	}

	if runErr != nil {
		// A PipelineAbort produces partial results by design; still exit 0.
		eng.log.Info("benchmark ended early", zap.Error(runErr))
	} else {
		_ = checkpoints.Remove(runID)
	}

	fmt.Printf("run %s: %d/%d prompts succeeded (%.1f%%)\n", runID, summary.SuccessfulPrompts, summary.TotalPrompts, summary.SuccessRatePct)
	return nil
}

// Run executes the resume subcommand.
func (c *ResumeCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.OutputDir != "" {
		cfg.Global.OutputDir = c.OutputDir
	}

	checkpoints := state.NewCheckpointStore(cfg.Global.OutputDir)
	cp, ok, err := checkpoints.Load(c.RunID)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}
	if !ok {
		return fmt.Errorf("no checkpoint found for run %s", c.RunID)
	}
	cfg.Global.PromptsDir = cp.Config.PromptsDir

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.log.Sync() //nolint:errcheck

	prompts, err := loadPrompts(eng.promptsDir)
	if err != nil {
		return fmt.Errorf("loading prompts: %w", err)
	}

	already := make(map[string]plugin.PipelineRunResult, len(cp.Results))
	for _, r := range cp.Results {
		already[r.PromptPath] = r
	}

	callback := metricsCallback{next: loggingCallback{log: eng.log}, reg: eng.metrics}
	runner := benchmark.NewRunner(pipelineAdapter{mgr: eng.mgr}, callback, cp.Config.MaxRetries)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, summary, runErr := runner.Run(ctx, prompts, already)
	if runErr != nil {
		eng.log.Info("resumed benchmark ended early", zap.Error(runErr))
	}

	store := state.NewResultStore(cfg.Global.OutputDir)
	if err := store.Save(state.BenchmarkRunResult{
		RunID:     c.RunID,
		Timestamp: time.Now(),
		Config:    cp.Config,
		Results:   results,
		Summary:   summaryState(summary),
	}); err != nil {
		eng.log.Warn("saving result", zap.Error(err))
	}
	if runErr == nil {
		_ = checkpoints.Remove(c.RunID)
	}

	fmt.Printf("resumed run %s: %d/%d prompts succeeded (%.1f%%)\n", c.RunID, summary.SuccessfulPrompts, summary.TotalPrompts, summary.SuccessRatePct)
	return nil
}

// Run executes the plugins subcommand.
func (c *PluginsCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	ids := eng.registry.IDs()
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
