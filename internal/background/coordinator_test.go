package background

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// fakeCapability is a plugin.BackgroundCapability whose behavior is fully
// scripted by the test: it spawns once, then blocks until either ctx is
// canceled or resultCh delivers a value to return from Run.
type fakeCapability struct {
	spawned  int32
	resultCh chan string
	succeeds bool
}

func (f *fakeCapability) ShouldSpawn(pctx plugin.Context) *plugin.SpawnConfig {
	if atomic.AddInt32(&f.spawned, 1) > 1 {
		return nil
	}
	return &plugin.SpawnConfig{PluginID: "search"}
}

func (f *fakeCapability) Run(ctx context.Context, cfg plugin.SpawnConfig) (any, error) {
	select {
	case v := <-f.resultCh:
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeCapability) IsSuccess(result any) bool {
	return f.succeeds && result != nil
}

func (f *fakeCapability) ToBackgroundTaskResult(result any, meta plugin.TaskMeta) plugin.BackgroundTaskResult {
	return plugin.BackgroundTaskResult{
		TaskID:   meta.TaskID,
		PluginID: "search",
		Success:  f.IsSuccess(result),
		Data:     result,
	}
}

type fakeBackgroundPlugin struct{ cap *fakeCapability }

func (f fakeBackgroundPlugin) Background() plugin.BackgroundCapability { return f.cap }

func TestCoordinator_SpawnAndSucceed(t *testing.T) {
	c := New(zap.NewNop())
	fc := &fakeCapability{resultCh: make(chan string, 1), succeeds: true}
	c.Register(fakeBackgroundPlugin{cap: fc})

	var gotSuccess plugin.BackgroundTaskResult
	done := make(chan struct{})
	c.OnSuccess(func(result plugin.BackgroundTaskResult) {
		gotSuccess = result
		close(done)
	})

	c.OnAttemptComplete(OnAttemptCompleteInput{AttemptNumber: 1})
	fc.resultCh <- "matched"

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnSuccess listener never fired")
	}

	select {
	case <-c.ForegroundAbortSignal().Done():
	case <-time.After(time.Second):
		t.Fatal("foreground abort signal did not fire on background success")
	}

	require.Equal(t, "search", gotSuccess.PluginID)
	require.NotNil(t, c.SuccessResult())
	require.True(t, c.SuccessResult().Success)

	c.CancelAll()
	require.Len(t, c.Results(), 1)
}

func TestCoordinator_OnAttemptCompleteSpawnsOnlyOnce(t *testing.T) {
	c := New(zap.NewNop())
	fc := &fakeCapability{resultCh: make(chan string, 1)}
	c.Register(fakeBackgroundPlugin{cap: fc})

	c.OnAttemptComplete(OnAttemptCompleteInput{AttemptNumber: 1})
	c.OnAttemptComplete(OnAttemptCompleteInput{AttemptNumber: 2})

	c.CancelAll()
	require.Len(t, c.Results(), 1, "second OnAttemptComplete call must not spawn again")
}

func TestCoordinator_CancelAllUnblocksRunningTask(t *testing.T) {
	c := New(zap.NewNop())
	fc := &fakeCapability{resultCh: make(chan string)} // never delivers
	c.Register(fakeBackgroundPlugin{cap: fc})

	c.OnAttemptComplete(OnAttemptCompleteInput{AttemptNumber: 1})

	finished := make(chan struct{})
	go func() {
		c.CancelAll()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("CancelAll did not return once the task's context was canceled")
	}
}

func TestCoordinator_Reset(t *testing.T) {
	c := New(zap.NewNop())
	fc := &fakeCapability{resultCh: make(chan string, 1), succeeds: true}
	c.Register(fakeBackgroundPlugin{cap: fc})

	c.OnAttemptComplete(OnAttemptCompleteInput{AttemptNumber: 1})
	fc.resultCh <- "matched"
	time.Sleep(50 * time.Millisecond)
	c.CancelAll()

	oldSignal := c.ForegroundAbortSignal()
	c.Reset()
	newSignal := c.ForegroundAbortSignal()

	require.NotSame(t, oldSignal, newSignal)
	require.Empty(t, c.Results())
	require.Nil(t, c.SuccessResult())
}
