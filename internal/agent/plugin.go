package agent

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/vela-forge/pipelinerunner/internal/feedback"
	"github.com/vela-forge/pipelinerunner/internal/plugin"
	"github.com/vela-forge/pipelinerunner/internal/session"
)

// UserPrompter deflects a usage-limit pause to a human or automated
// collaborator and returns "continue" (retry the same underlying call) or
// "abort" (the plugin raises PipelineAbort).
type UserPrompter interface {
	PromptUsageLimit(ctx context.Context, err *plugin.UsageLimitError) (string, error)
}

// ToolExecutor runs one tool call on behalf of the agent transport. It is
// an engine-local hook for observability/budgeting; the transport's own
// subprocess is the actual execution surface for the tools it requests.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, input map[string]any) (string, error)
}

// PluginOption configures a Plugin at construction time.
type PluginOption func(*Plugin)

// WithModel sets the model identifier passed to every Query.
func WithModel(model string) PluginOption {
	return func(p *Plugin) { p.model = model }
}

// WithToolCallLimit sets the per-attempt tool-call budget.
func WithToolCallLimit(limit int) PluginOption {
	return func(p *Plugin) { p.toolCallLimit = limit }
}

// WithStallThreshold sets the stall-detection window size, forwarded to a
// fresh feedback.Builder at the start of each pipeline run.
func WithStallThreshold(threshold int) PluginOption {
	return func(p *Plugin) { p.stallThreshold = threshold }
}

// WithUserPrompter installs a usage-limit deflection collaborator. Without
// one, usage-limit errors propagate as ordinary failures.
func WithUserPrompter(prompter UserPrompter) PluginOption {
	return func(p *Plugin) { p.prompter = prompter }
}

// WithToolExecutor installs a tool-call observer/executor.
func WithToolExecutor(executor ToolExecutor) PluginOption {
	return func(p *Plugin) { p.tools = executor }
}

// WithTemplateFS sets the filesystem the retry-feedback templates are
// parsed from, typically feedback.OverlayFS(dir, feedback.Assets) so the
// stall/best-attempt wording can be overridden on disk without a rebuild.
// Templates are re-parsed per pipeline run, so edits apply from the next
// prompt on. Without this option the embedded templates are used.
func WithTemplateFS(fsys fs.FS) PluginOption {
	return func(p *Plugin) { p.templates = fsys }
}

// Plugin is the canonical agentic main plugin: it drives a Transport
// across retries with session continuity, replays cached responses via
// the conversation-tree cache, deflects usage-limit pauses, and enforces
// a per-attempt tool-call budget.
type Plugin struct {
	id        string
	name      string
	transport Transport
	cache     *session.Cache

	model          string
	toolCallLimit  int
	stallThreshold int
	prompter       UserPrompter
	tools          ToolExecutor
	templates      fs.FS

	mu            sync.Mutex
	sessionToken  string
	currentNode   *session.Node
	toolCallCount int
	abortSignal   *plugin.AbortSignal
	feedbackBldr  *feedback.Builder
}

// New builds an agentic Plugin with id/name, a Transport, and a shared
// conversation-tree Cache. Callers typically share one Cache across every
// prompt in a benchmark run; it is the one piece of plugin state that
// deliberately outlives a single prompt.
func New(id, name string, transport Transport, cache *session.Cache, opts ...PluginOption) *Plugin {
	p := &Plugin{
		id:             id,
		name:           name,
		transport:      transport,
		cache:          cache,
		toolCallLimit:  25,
		stallThreshold: 3,
		abortSignal:    plugin.NewAbortSignal(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Plugin) ID() string   { return p.id }
func (p *Plugin) Name() string { return p.name }

// SetForegroundAbortSignal installs the coordinator's foreground-abort
// signal (plugin.ForegroundAbortable).
func (p *Plugin) SetForegroundAbortSignal(signal *plugin.AbortSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abortSignal = signal
}

func (p *Plugin) currentAbortSignal() *plugin.AbortSignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.abortSignal
}

// Execute runs one attempt of the agentic flow (plugin.Plugin).
func (p *Plugin) Execute(ctx context.Context, pctx plugin.Context) (plugin.Result, plugin.Context, error) {
	start := time.Now()

	if pctx.AttemptNumber <= 1 {
		builder, err := p.newBuilder()
		if err != nil {
			return plugin.Result{
				PluginID:   p.id,
				PluginName: p.name,
				Status:     plugin.StatusFailure,
				DurationMs: time.Since(start).Milliseconds(),
				Err:        err.Error(),
			}, pctx, nil
		}
		p.mu.Lock()
		p.sessionToken = ""
		p.currentNode = nil
		p.feedbackBldr = builder
		p.mu.Unlock()
	}
	p.mu.Lock()
	p.toolCallCount = 0
	p.mu.Unlock()

	promptText := pctx.PromptContent
	if pctx.AttemptNumber > 1 && pctx.RetryFeedback != "" {
		promptText = pctx.RetryFeedback
	}
	key := session.Key(promptText)

	if node, hit := p.lookupCache(pctx.AttemptNumber, key); hit {
		p.mu.Lock()
		p.sessionToken = node.SessionToken
		p.currentNode = node
		p.mu.Unlock()
		pctx.GeneratedCode = node.Response
		return p.successResult(node.Response, start), pctx, nil
	}

	p.mu.Lock()
	resume := p.sessionToken
	p.mu.Unlock()

	outcome, err := p.runQuery(ctx, promptText, QueryOptions{Model: p.model, Resume: resume})
	if err != nil {
		return plugin.Result{}, pctx, err
	}

	if outcome.aborted {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.name,
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Err:        plugin.ErrBackgroundPreempted,
		}, pctx, nil
	}

	node := &session.Node{Response: outcome.text, SessionToken: outcome.sessionToken, LastMessageID: outcome.lastMessageID}
	p.storeCache(pctx.AttemptNumber, key, node)
	p.mu.Lock()
	p.sessionToken = outcome.sessionToken
	p.currentNode = node
	p.mu.Unlock()

	if !outcome.success {
		return plugin.Result{
			PluginID:   p.id,
			PluginName: p.name,
			Status:     plugin.StatusFailure,
			DurationMs: time.Since(start).Milliseconds(),
			Err:        outcome.errMsg,
		}, pctx, nil
	}

	pctx.GeneratedCode = outcome.text
	return p.successResult(outcome.text, start), pctx, nil
}

func (p *Plugin) successResult(code string, start time.Time) plugin.Result {
	return plugin.Result{
		PluginID:   p.id,
		PluginName: p.name,
		Status:     plugin.StatusSuccess,
		DurationMs: time.Since(start).Milliseconds(),
		Output:     code,
		Data:       code,
	}
}

func (p *Plugin) lookupCache(attemptNumber int, key uint64) (*session.Node, bool) {
	if attemptNumber <= 1 {
		return p.cache.Root(key)
	}
	p.mu.Lock()
	node := p.currentNode
	p.mu.Unlock()
	if node == nil {
		return nil, false
	}
	return node.FollowUp(key)
}

func (p *Plugin) storeCache(attemptNumber int, key uint64, node *session.Node) {
	if attemptNumber <= 1 {
		p.cache.PutRoot(key, node)
		return
	}
	p.mu.Lock()
	parent := p.currentNode
	p.mu.Unlock()
	if parent != nil {
		parent.PutFollowUp(key, node)
	}
}

// PrepareRetry computes the next attempt's retry-feedback text and
// stashes it on the returned Context for Execute to pick up as the
// follow-up prompt (plugin.RetryPreparer).
func (p *Plugin) PrepareRetry(ctx context.Context, pctx plugin.Context, previousAttempts []map[string]plugin.Result) (plugin.Context, error) {
	p.mu.Lock()
	builder := p.feedbackBldr
	p.mu.Unlock()
	if builder == nil {
		fresh, err := p.newBuilder()
		if err != nil {
			return pctx, fmt.Errorf("agent: building retry feedback: %w", err)
		}
		builder = fresh
		p.mu.Lock()
		p.feedbackBldr = builder
		p.mu.Unlock()
	}

	text, err := builder.Build(previousAttempts)
	if err != nil {
		return pctx, fmt.Errorf("agent: building retry feedback: %w", err)
	}
	pctx.RetryFeedback = text
	return pctx, nil
}

// newBuilder constructs the per-run feedback builder, parsing templates
// from the configured filesystem when one was installed.
func (p *Plugin) newBuilder() (*feedback.Builder, error) {
	if p.templates == nil {
		return feedback.NewBuilder(p.stallThreshold), nil
	}
	return feedback.NewBuilderFS(p.stallThreshold, p.templates)
}

type queryOutcome struct {
	success         bool
	aborted         bool
	errMsg          string
	text            string
	sessionToken    string
	lastMessageID   string
	usageLimitRetry bool
}

// runQuery issues Query calls until a terminal (non-usage-limit) result is
// reached, aborted by the foreground-abort signal, or a usage-limit pause
// is deflected to "abort" (raising PipelineAbort).
func (p *Plugin) runQuery(ctx context.Context, promptText string, opts QueryOptions) (queryOutcome, error) {
	for {
		stream, err := p.transport.Query(ctx, promptText, opts)
		if err != nil {
			return queryOutcome{errMsg: err.Error()}, nil
		}

		outcome, abortErr := p.drainStream(ctx, stream)
		if abortErr != nil {
			return queryOutcome{}, abortErr
		}
		if outcome.usageLimitRetry {
			continue
		}
		return outcome, nil
	}
}

// drainStream consumes one Query's message stream, enforcing the
// tool-call budget on assistant tool_use blocks and racing the foreground
// abort signal against the stream.
func (p *Plugin) drainStream(ctx context.Context, stream <-chan Message) (queryOutcome, error) {
	signal := p.currentAbortSignal()
	var text strings.Builder
	var sessionToken, lastMessageID string

	for {
		// A fired signal takes priority over messages already buffered on
		// the stream; select alone would pick between them at random.
		if signal.Aborted() {
			go func() {
				for range stream {
				}
			}()
			return queryOutcome{aborted: true}, nil
		}
		select {
		case <-signal.Done():
			// Abandoning the stream mid-flight: keep draining it in the
			// background so the transport's writer goroutine can finish and
			// close the channel.
			go func() {
				for range stream {
				}
			}()
			return queryOutcome{aborted: true}, nil
		case msg, ok := <-stream:
			if !ok {
				return queryOutcome{errMsg: "agent: transport closed without a result message"}, nil
			}
			switch m := msg.(type) {
			case SystemMessage:
				sessionToken = m.SessionToken
			case AssistantMessage:
				lastMessageID = m.LastMessageID
				p.handleBlocks(ctx, m.Blocks, &text)
			case ResultMessage:
				if m.IsUsageLimit() {
					if p.prompter == nil {
						return queryOutcome{errMsg: fmt.Sprintf("usage limit: %s", m.Output)}, nil
					}
					action, perr := p.prompter.PromptUsageLimit(ctx, &plugin.UsageLimitError{Message: m.Output})
					if perr != nil {
						return queryOutcome{errMsg: perr.Error()}, nil
					}
					switch action {
					case "continue":
						return queryOutcome{usageLimitRetry: true}, nil
					case "abort":
						return queryOutcome{}, plugin.NewPipelineAbort("usage limit exceeded: " + m.Output)
					default:
						return queryOutcome{errMsg: "agent: unknown usage-limit action: " + action}, nil
					}
				}
				return queryOutcome{
					success:       m.Subtype == "success",
					errMsg:        m.Output,
					text:          text.String(),
					sessionToken:  sessionToken,
					lastMessageID: lastMessageID,
				}, nil
			}
		}
	}
}

// handleBlocks applies the per-attempt tool-call budget to tool_use
// blocks: once toolCallLimit is exceeded, subsequent tool invocations are
// refused instead of executed.
func (p *Plugin) handleBlocks(ctx context.Context, blocks []ContentBlock, text *strings.Builder) {
	for _, block := range blocks {
		switch block.Type {
		case BlockText:
			text.WriteString(block.Text)
		case BlockToolUse:
			p.mu.Lock()
			p.toolCallCount++
			count := p.toolCallCount
			p.mu.Unlock()

			if count > p.toolCallLimit {
				continue // refused: budget exhausted, tool is not executed
			}
			if p.tools != nil {
				_, _ = p.tools.Execute(ctx, block.ToolName, block.ToolInput)
			}
		}
	}
}
