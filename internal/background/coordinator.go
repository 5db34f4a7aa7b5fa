// Package background implements the background-task coordinator:
// lifecycle management for search tasks that race with the foreground
// AI-powered retry loop, and the foreground-abort signal those tasks fire
// on first success.
package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// forceSettleTimeout bounds how long CancelAll waits for a task to notice
// its cancellation before moving on regardless.
const forceSettleTimeout = 30 * time.Second

// OnAttemptCompleteInput is the per-attempt bookkeeping handed to
// OnAttemptComplete.
type OnAttemptCompleteInput struct {
	AttemptNumber int
	WillRetry     bool
	Context       plugin.Context
	AttemptResult plugin.AttemptResult
}

type task struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator spawns, tracks, and cancels background tasks, and exposes a
// single-shot foreground-abort signal that fires on first background
// success.
type Coordinator struct {
	log *zap.Logger

	mu            sync.Mutex
	plugins       []plugin.BackgroundCapable
	signal        *plugin.AbortSignal
	results       []plugin.BackgroundTaskResult
	successResult *plugin.BackgroundTaskResult
	counter       map[string]int
	tasks         []*task
	onSuccess     []func(result plugin.BackgroundTaskResult)
	wg            sync.WaitGroup
}

// New returns a Coordinator with no registered background plugins.
func New(log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		log:     log,
		signal:  plugin.NewAbortSignal(),
		counter: make(map[string]int),
	}
}

// Register adds a background-capable plugin to the race pool.
func (c *Coordinator) Register(p plugin.BackgroundCapable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plugins = append(c.plugins, p)
}

// OnSuccess subscribes a listener invoked the first time any background
// task returns a success result. Subsequent successes are recorded but do
// not re-invoke listeners.
func (c *Coordinator) OnSuccess(fn func(result plugin.BackgroundTaskResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSuccess = append(c.onSuccess, fn)
}

// ForegroundAbortSignal returns the current abort signal. The engine must
// propagate this to every main plugin before the first attempt of a
// prompt's AI-powered flow, and must not re-fetch it except after Reset.
func (c *Coordinator) ForegroundAbortSignal() *plugin.AbortSignal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

// Reset clears accumulated results, success listeners, and the task-id
// counter, and replaces the foreground-abort signal with a fresh one.
// Subscriptions are per-prompt; each run re-registers its own listener
// after Reset. The caller must CancelAll before calling Reset; Reset
// itself cancels nothing.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = nil
	c.successResult = nil
	c.counter = make(map[string]int)
	c.tasks = nil
	c.onSuccess = nil
	c.signal = plugin.NewAbortSignal()
}

// Results returns the background task results collected so far.
func (c *Coordinator) Results() []plugin.BackgroundTaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]plugin.BackgroundTaskResult, len(c.results))
	copy(out, c.results)
	return out
}

// SuccessResult returns the first success observed, if any.
func (c *Coordinator) SuccessResult() *plugin.BackgroundTaskResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successResult
}

// OnAttemptComplete asks every registered background plugin whether it
// wants to spawn a new task, given the just-completed attempt's context.
// A non-nil SpawnConfig starts the task immediately and concurrently.
func (c *Coordinator) OnAttemptComplete(in OnAttemptCompleteInput) {
	c.mu.Lock()
	plugins := make([]plugin.BackgroundCapable, len(c.plugins))
	copy(plugins, c.plugins)
	c.mu.Unlock()

	for _, p := range plugins {
		capability := p.Background()
		cfg := capability.ShouldSpawn(in.Context)
		if cfg == nil {
			continue
		}
		c.spawn(capability, *cfg, in.AttemptNumber)
	}
}

// spawn starts one background task running concurrently with its own
// cancellation signal.
func (c *Coordinator) spawn(capability plugin.BackgroundCapability, cfg plugin.SpawnConfig, attemptNumber int) {
	c.mu.Lock()
	c.counter[cfg.PluginID]++
	taskID := fmt.Sprintf("%s-%d", cfg.PluginID, c.counter[cfg.PluginID])
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{id: taskID, cancel: cancel, done: make(chan struct{})}
	c.tasks = append(c.tasks, t)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(t.done)

		start := time.Now()
		result, err := capability.Run(ctx, cfg)
		durationMs := time.Since(start).Milliseconds()

		if err != nil {
			c.log.Warn("background task failed", zap.String("task_id", taskID), zap.Error(err))
		}

		meta := plugin.TaskMeta{
			TaskID:             taskID,
			DurationMs:         durationMs,
			TriggeredByAttempt: attemptNumber,
			StartTimestamp:     start,
		}
		btr := capability.ToBackgroundTaskResult(result, meta)

		c.mu.Lock()
		c.results = append(c.results, btr)
		firstSuccess := capability.IsSuccess(result) && c.successResult == nil
		if firstSuccess {
			saved := btr
			c.successResult = &saved
		}
		listeners := make([]func(plugin.BackgroundTaskResult), len(c.onSuccess))
		copy(listeners, c.onSuccess)
		c.mu.Unlock()

		if firstSuccess {
			c.signal.Fire()
			for _, fn := range listeners {
				fn(btr)
			}
		}
	}()
}

// CancelAll fires cancellation on every active task and awaits
// settlement; errors are swallowed (a task's run error is only logged; the
// task's result is still collected). It never returns an error; shutdown
// is best-effort with a force-timeout.
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	tasks := make([]*task, len(c.tasks))
	copy(tasks, c.tasks)
	c.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(forceSettleTimeout):
		c.log.Warn("background tasks did not settle before force-timeout")
	}
}
