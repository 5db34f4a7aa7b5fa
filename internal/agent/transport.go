// Package agent implements the agentic main plugin: the canonical
// AI-powered-flow step that drives an LLM agent transport, keeps a
// session-continuity contract across attempts, and deflects usage-limit
// errors to a user-prompt collaborator.
//
// The transport is modeled as a stream of typed messages rather than a
// single terminal blob, since the plugin needs to observe session tokens,
// tool calls, and usage-limit errors mid-stream rather than only at the
// end.
package agent

import (
	"context"
	"fmt"
	"time"
)

// MessageKind discriminates the union of messages a Transport streams.
type MessageKind string

const (
	KindSystem    MessageKind = "system"
	KindAssistant MessageKind = "assistant"
	KindUser      MessageKind = "user"
	KindResult    MessageKind = "result"
)

// Message is the closed union streamed by a Transport query.
type Message interface {
	Kind() MessageKind
}

// SystemMessage carries the session token established at the start of a
// conversation.
type SystemMessage struct {
	SessionToken string
}

func (SystemMessage) Kind() MessageKind { return KindSystem }

// BlockType discriminates an assistant content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of an AssistantMessage's content.
type ContentBlock struct {
	Type      BlockType
	Text      string
	ToolName  string
	ToolInput map[string]any
}

// AssistantMessage carries one or more content blocks.
type AssistantMessage struct {
	LastMessageID string
	Blocks        []ContentBlock
}

func (AssistantMessage) Kind() MessageKind { return KindAssistant }

// UserMessage carries tool results sent back to the agent.
type UserMessage struct {
	ToolResults []ContentBlock
}

func (UserMessage) Kind() MessageKind { return KindUser }

// ResultMessage is the terminal message of a query.
type ResultMessage struct {
	Subtype  string // "success" or an error subtype
	ErrorTag string // e.g. "rate_limit", "billing"
	Output   string
	Duration time.Duration
}

func (ResultMessage) Kind() MessageKind { return KindResult }

// IsUsageLimit reports whether this result's error tag indicates a
// transport-level quota or billing limit.
func (r ResultMessage) IsUsageLimit() bool {
	switch r.ErrorTag {
	case "rate_limit", "billing":
		return true
	default:
		return false
	}
}

// QueryOptions parameterizes one query.
type QueryOptions struct {
	Model  string
	Resume string // session token to resume, empty for a fresh session
}

// Transport is the engine-facing agent transport contract.
type Transport interface {
	Query(ctx context.Context, prompt string, opts QueryOptions) (<-chan Message, error)
}

// TimeoutError indicates a transport execution exceeded its time limit.
type TimeoutError struct {
	Transport string
	Duration  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("agent: %s: timed out after %s", e.Transport, e.Duration)
}

// TransportError wraps an error from a specific transport.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent: %s: %s", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
